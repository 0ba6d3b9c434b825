package biz

import (
	"fmt"
	"math"
	"strings"
	"time"

	"IntelHarvest/internal/model"
)

// Macro thresholds, in percent day-over-day EUR/USD change.
const (
	fxRedPct   = 1.5
	fxGreenPct = 0.5
)

// SEC 8-K item codes. 1.03 is bankruptcy, 4.02 non-reliance on financial
// statements, 5.02 director or officer departure.
var (
	redFilingItems   = []string{"ITEM 1.03", "ITEM 4.02"}
	amberFilingItems = []string{"ITEM 5.02"}
)

// KEV windows
const (
	kevRecentWindow     = 7 * 24 * time.Hour
	kevRansomwareWindow = 48 * time.Hour
	kevDateLayout       = "2006-01-02"
	maxMatchedVulns     = 5
	maxCVEsInSignal     = 3
	suppliersRedAtRisk  = 3
)

// sentiment thresholds, in percent intraday change
const sentimentPct = 1.0

// ragFromRisk maps an entity risk level to a RAG score.
func ragFromRisk(level RiskLevel) string {
	switch level {
	case RiskCritical:
		return model.RAGRed
	case RiskMedium:
		return model.RAGAmber
	default:
		return model.RAGGreen
	}
}

var ragRank = map[string]int{model.RAGGreen: 0, model.RAGAmber: 1, model.RAGRed: 2}

// worseRAG returns the more severe of two RAG scores.
func worseRAG(a, b string) string {
	if ragRank[b] > ragRank[a] {
		return b
	}
	return a
}

func errDetail(err error, n int) string {
	if err == nil {
		return "unknown error"
	}
	return truncateRunes(err.Error(), n)
}

// firstHeadline returns the first non-empty headline and the first price
// change among signals.
func firstHeadline(signals []model.EntitySignal) (headline *string, pct *float64) {
	for i := range signals {
		s := signals[i]
		if headline == nil && s.Headline != nil && strings.TrimSpace(*s.Headline) != "" {
			headline = s.Headline
		}
		if pct == nil && s.PriceChangePct != nil {
			pct = s.PriceChangePct
		}
	}
	return headline, pct
}

// BuildMacroPillar scores the macro regions. The RAG follows the number of
// regions that reported (all GREEN, some AMBER, none RED); when the EUR/USD
// rate is known for this run and the previous one, its day-over-day move
// overrides it (above 1.5% RED, below 0.5% GREEN, else AMBER). Each region
// carries a trend label from its daily change, "N/A" when none was reported.
func BuildMacroPillar(outcomes []SourceOutcome, regions []string, previous *model.DashboardSnapshot) *model.PillarAggregate {
	p := &model.PillarAggregate{
		Status:  pillarStatus(outcomes),
		Metrics: map[string]float64{},
	}

	regionsOK := 0
	var fxRate *float64
	for _, region := range regions {
		e := model.EntityAssessment{
			Name:       region,
			Attributes: map[string]string{"trend": trendUnknown},
			Metrics:    map[string]float64{},
		}

		var attempted, failed []SourceOutcome
		for _, o := range outcomes {
			if !addressedTo(o, region) {
				continue
			}
			attempted = append(attempted, o)
			if !o.OK() {
				failed = append(failed, o)
			}
		}

		switch {
		case len(attempted) == 0:
			e.Status = model.StatusSkipped
			e.RAGScore = model.RAGAmber
			e.RiskLevel = string(RiskLow)
			e.LastSignal = "No source configured for region."
		case len(failed) == len(attempted):
			e.Status = model.StatusError
			e.RAGScore = model.RAGRed
			e.RiskLevel = string(RiskLow)
			e.LastSignal = "Data unavailable: " + errDetail(failed[len(failed)-1].Err, 50)
		default:
			regionsOK++
			signals := signalsFor(attempted, region)
			for _, s := range signals {
				for k, v := range s.Indicators {
					e.Metrics[k] = v
				}
				if s.FXRate != nil {
					e.Metrics["fx_rate"] = *s.FXRate
					if fxRate == nil {
						rate := *s.FXRate
						fxRate = &rate
					}
				}
			}
			headline, pct := firstHeadline(signals)
			if pct == nil {
				if v, ok := e.Metrics["change_pct"]; ok {
					pct = &v
				}
			}
			if pct != nil {
				e.Metrics["change_pct"] = *pct
				e.Attributes["trend"] = trendFromChange(*pct)
			}
			a := Classify(headline, nil)
			e.Status = model.StatusSuccess
			e.RAGScore = ragFromRisk(a.Level)
			e.RiskLevel = string(a.Level)
			e.LastSignal = a.Signal
			e.Keyword = a.Keyword
		}
		if len(e.Metrics) == 0 {
			e.Metrics = nil
		}
		p.Entities = append(p.Entities, e)
	}

	switch {
	case len(regions) > 0 && regionsOK == len(regions):
		p.RAGScore = model.RAGGreen
	case regionsOK >= 1:
		p.RAGScore = model.RAGAmber
	default:
		p.RAGScore = model.RAGRed
	}
	p.Metrics["regions_ok"] = float64(regionsOK)

	if fxRate != nil {
		p.Metrics["fx_rate"] = *fxRate
		if prev := previousFXRate(previous); prev > 0 {
			volatility := math.Abs((*fxRate-prev)/prev) * 100
			p.Metrics["volatility_pct"] = volatility
			switch {
			case volatility > fxRedPct:
				p.RAGScore = model.RAGRed
			case volatility < fxGreenPct:
				p.RAGScore = model.RAGGreen
			default:
				p.RAGScore = model.RAGAmber
			}
		}
	}

	p.Summary = fmt.Sprintf("%d of %d regions reporting.", regionsOK, len(regions))
	return p
}

const (
	trendUnknown   = "N/A"
	trendStablePct = 0.5
)

// trendFromChange labels a region's daily indicator change in percent.
func trendFromChange(pct float64) string {
	switch {
	case pct > trendStablePct:
		return "Growing"
	case pct < -trendStablePct:
		return "Declining"
	default:
		return "Stable"
	}
}

func previousFXRate(previous *model.DashboardSnapshot) float64 {
	if previous == nil || previous.Macro == nil || previous.Macro.Status != model.StatusSuccess {
		return 0
	}
	return previous.Macro.Metrics["fx_rate"]
}

// countFilingSignals counts red and amber 8-K items among filings.
func countFilingSignals(filings []model.Filing) (red, amber int) {
	for _, f := range filings {
		summary := strings.ToUpper(f.Summary)
		switch {
		case containsAny(summary, redFilingItems):
			red++
		case containsAny(summary, amberFilingItems):
			amber++
		}
	}
	return red, amber
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// BuildPeersPillar scores the tracked peers from their 8-K filings and their
// market signals. Peers that are not US-listed are skipped for filings. An
// entity's RAG is the worse of its filings and its risk level; the pillar RAG
// follows the filing totals.
func BuildPeersPillar(filings, market []SourceOutcome, peers []PeerProfile) *model.PillarAggregate {
	p := &model.PillarAggregate{
		Status:  pillarStatus(append(append([]SourceOutcome(nil), filings...), market...)),
		Metrics: map[string]float64{},
	}

	marketOpen := false
	for _, o := range market {
		if o.CircuitOpen() {
			marketOpen = true
		}
	}

	totalRed, totalAmber := 0, 0
	for _, peer := range peers {
		e := model.EntityAssessment{
			Name:     peer.Name,
			Category: peer.Type,
			Attributes: map[string]string{
				"full_name": peer.FullName,
				"ticker":    peer.Ticker,
				"region":    peer.Region,
			},
			Metrics: map[string]float64{},
		}

		status, reason := model.StatusSkipped, ""
		var peerFilings []model.Filing
		var lastErr error
		if !peer.USListed {
			reason = "Not US-listed"
		} else {
			var attempted []SourceOutcome
			for _, o := range filings {
				if addressedTo(o, peer.Name, peer.Ticker) {
					attempted = append(attempted, o)
				}
			}
			switch {
			case len(attempted) == 0:
				reason = "No filing source configured"
			case pillarStatus(attempted) == model.StatusSuccess:
				status = model.StatusSuccess
				for _, s := range signalsFor(attempted, peer.Name, peer.Ticker) {
					peerFilings = append(peerFilings, s.Filings...)
				}
			default:
				status = model.StatusError
				lastErr = attempted[len(attempted)-1].Err
			}
		}

		red, amber := countFilingSignals(peerFilings)
		if status == model.StatusSuccess {
			totalRed += red
			totalAmber += amber
		}
		e.Status = status
		e.Filings = peerFilings
		e.Metrics["red_signals"] = float64(red)
		e.Metrics["amber_signals"] = float64(amber)
		if reason != "" {
			e.Attributes["reason"] = reason
		}

		filingsRAG := model.RAGGreen
		switch {
		case red > 0:
			filingsRAG = model.RAGRed
		case amber > 0:
			filingsRAG = model.RAGAmber
		}

		headline, pct := firstHeadline(signalsFor(market, peer.Name, peer.Ticker))
		if pct != nil {
			e.Metrics["price_change_pct"] = *pct
			e.Attributes["sentiment"] = sentiment(*pct)
		} else if marketOpen {
			e.Attributes["market_data"] = "fallback: circuit breaker open"
		}

		a := Classify(headline, pct)
		if red > 0 {
			a = Escalate(a, RiskCritical, fmt.Sprintf("SEC 8-K distress: %d red signal(s) (Item 1.03/4.02).", red))
		} else if amber > 0 {
			a = Escalate(a, RiskMedium, fmt.Sprintf("SEC 8-K warning: %d amber signal(s) (Item 5.02).", amber))
		}
		e.RAGScore = worseRAG(filingsRAG, ragFromRisk(a.Level))
		e.RiskLevel = string(a.Level)
		e.LastSignal = a.Signal
		e.Keyword = a.Keyword
		e.Summary = peerSummary(peer, status, reason, peerFilings, red, amber, lastErr)

		p.Entities = append(p.Entities, e)
	}

	switch {
	case totalRed > 0:
		p.RAGScore = model.RAGRed
	case totalAmber > 0:
		p.RAGScore = model.RAGAmber
	default:
		p.RAGScore = model.RAGGreen
	}
	p.Metrics["total_peers"] = float64(len(peers))
	p.Metrics["total_red_signals"] = float64(totalRed)
	p.Metrics["total_amber_signals"] = float64(totalAmber)
	p.Summary = fmt.Sprintf("%d peers tracked, %d red, %d amber signals.", len(peers), totalRed, totalAmber)
	return p
}

func sentiment(pct float64) string {
	switch {
	case pct > sentimentPct:
		return "Positive"
	case pct < -sentimentPct:
		return "Negative"
	default:
		return "Neutral"
	}
}

// peerSummary always returns a non-empty text.
func peerSummary(peer PeerProfile, status, reason string, filings []model.Filing, red, amber int, err error) string {
	if red > 0 {
		joined := strings.ToUpper(fmt.Sprint(filings))
		switch {
		case strings.Contains(joined, "ITEM 1.03"):
			return "CRITICAL: Bankruptcy filing detected (Item 1.03). Immediate attention required."
		case strings.Contains(joined, "ITEM 4.02"):
			return "CRITICAL: Non-reliance on financial statements (Item 4.02). Material accounting issues identified."
		}
		return fmt.Sprintf("CRITICAL: %d distress signal(s) detected in recent SEC filings. Review required.", red)
	}
	if amber > 0 {
		return fmt.Sprintf("WARNING: %d warning signal(s) detected. Recent director departures or management changes noted.", amber)
	}

	switch status {
	case model.StatusSuccess:
		if len(filings) == 0 {
			return "Neutral: No material filings in last 48h. Standard operational status."
		}
		return fmt.Sprintf("Neutral: %d recent filing(s) processed. No material risks in last 48h.", len(filings))
	case model.StatusError:
		return fmt.Sprintf("Neutral: Data fetch error encountered (%s). Monitoring via alternative sources.", errDetail(err, 50))
	}
	if peer.DefaultText != "" {
		return peer.DefaultText
	}
	if reason == "Not US-listed" {
		return "Neutral: Company not US-listed. Monitoring international filings and news sources."
	}
	return fmt.Sprintf("Neutral: %s. Alternative monitoring sources active.", reason)
}

// kevCatalog is the recent part of the known-exploited catalog.
type kevCatalog struct {
	recent   []model.VulnMatch
	critical map[string]bool
}

// recentVulnerabilities keeps the entries added within the last 7 days and
// flags the ransomware-linked ones added within 48 hours. Entries with an
// unparsable date are ignored.
func recentVulnerabilities(cyber []SourceOutcome, now time.Time) kevCatalog {
	cat := kevCatalog{critical: map[string]bool{}}
	recentSince := now.Add(-kevRecentWindow)
	criticalSince := now.Add(-kevRansomwareWindow)
	for _, o := range cyber {
		if !o.OK() {
			continue
		}
		for _, s := range o.Envelope.Signals {
			for _, v := range s.Vulnerabilities {
				added, err := time.Parse(kevDateLayout, v.DateAdded)
				if err != nil || added.Before(recentSince) {
					continue
				}
				cat.recent = append(cat.recent, v)
				if v.Ransomware && !added.Before(criticalSince) {
					cat.critical[v.CVEID] = true
				}
			}
		}
	}
	return cat
}

// matchVulnerabilities returns the entries whose vendor, product or name
// mention the supplier, case-insensitively.
func matchVulnerabilities(name string, vulns []model.VulnMatch) []model.VulnMatch {
	needle := strings.ToUpper(strings.TrimSpace(name))
	if needle == "" {
		return nil
	}
	var out []model.VulnMatch
	for _, v := range vulns {
		if strings.Contains(strings.ToUpper(v.Vendor), needle) ||
			strings.Contains(strings.ToUpper(v.Product), needle) ||
			strings.Contains(strings.ToUpper(v.Name), needle) {
			out = append(out, v)
		}
	}
	return out
}

func cyberSignal(name string, matches []model.VulnMatch) string {
	ids := make([]string, 0, maxCVEsInSignal)
	for i, v := range matches {
		if i == maxCVEsInSignal {
			break
		}
		id := v.CVEID
		if id == "" {
			id = "N/A"
		}
		ids = append(ids, id)
	}
	return fmt.Sprintf("Cyber Risk: %d CISA vulnerability(ies) match %s. CVE IDs: %s.", len(matches), name, strings.Join(ids, ", "))
}

// BuildSuppliersPillar scores the supplier watchlist. Known-exploited
// vulnerabilities matching a supplier decide first (two or more CRITICAL,
// one MEDIUM); otherwise the supplier's news headline and price move are
// classified. Three or more suppliers at risk make the pillar RED.
func BuildSuppliersPillar(cyber, news, market []SourceOutcome, table *EntityTable, now time.Time) *model.PillarAggregate {
	all := append(append([]SourceOutcome(nil), cyber...), news...)
	p := &model.PillarAggregate{
		Status:  pillarStatus(all),
		Metrics: map[string]float64{},
	}

	cat := recentVulnerabilities(cyber, now)
	cyberStatus := pillarStatus(cyber)

	atCyberRisk, atNewsRisk := 0, 0
	for _, supplier := range table.Suppliers() {
		e := model.EntityAssessment{
			Name:     supplier.Name,
			Category: supplier.Category,
			Attributes: map[string]string{
				"exposure": supplier.Exposure,
				"segment":  supplier.Segment,
				"location": supplier.Location,
				"ticker":   supplier.Ticker,
				"slug":     slug(supplier.Name),
			},
		}
		if e.Attributes["ticker"] == "" {
			e.Attributes["ticker"] = "N/A"
		}

		var own []SourceOutcome
		for _, o := range news {
			if addressedTo(o, supplier.Name) {
				own = append(own, o)
			}
		}
		e.Status = pillarStatus(append(own, cyber...))

		matches := matchVulnerabilities(supplier.Name, cat.recent)
		var a RiskAssessment
		if len(matches) > 0 {
			atCyberRisk++
			level := RiskMedium
			if len(matches) >= 2 {
				level = RiskCritical
			}
			a = RiskAssessment{Level: level, Signal: cyberSignal(supplier.Name, matches)}
			for _, v := range matches {
				if cat.critical[v.CVEID] {
					a = Escalate(a, RiskCritical, fmt.Sprintf("Cyber Risk: ransomware-linked %s added to the CISA catalog within 48h.", v.CVEID))
					break
				}
			}
			if len(matches) > maxMatchedVulns {
				matches = matches[:maxMatchedVulns]
			}
			e.MatchingVulnerabilities = matches
		} else {
			headline, _ := firstHeadline(signalsFor(own, supplier.Name))
			_, pct := firstHeadline(signalsFor(market, supplier.Name, supplier.Ticker))
			a = Classify(headline, pct)
			if a.Level != RiskLow {
				atNewsRisk++
			}
			if pct != nil {
				e.Metrics = map[string]float64{"price_change_pct": *pct}
			}
		}
		a = EnsureSignal(a, fmt.Sprintf("Risk detected: Review required for %s.", supplier.Name))

		e.RiskLevel = string(a.Level)
		e.LastSignal = a.Signal
		e.Keyword = a.Keyword
		e.RAGScore = ragFromRisk(a.Level)
		if cyberStatus == model.StatusError && len(own) == 0 {
			e.Summary = "Vulnerability feed unavailable this run."
		}
		p.Entities = append(p.Entities, e)
	}

	atRisk := atCyberRisk + atNewsRisk
	switch {
	case atRisk >= suppliersRedAtRisk:
		p.RAGScore = model.RAGRed
	case atRisk > 0:
		p.RAGScore = model.RAGAmber
	default:
		p.RAGScore = model.RAGGreen
	}
	p.Metrics["total_suppliers"] = float64(len(p.Entities))
	p.Metrics["suppliers_at_cyber_risk"] = float64(atCyberRisk)
	p.Metrics["suppliers_at_news_risk"] = float64(atNewsRisk)
	p.Metrics["recent_vulnerabilities"] = float64(len(cat.recent))
	p.Metrics["critical_vulnerabilities"] = float64(len(cat.critical))
	p.Summary = fmt.Sprintf("%d suppliers, %d at cyber risk, %d at news risk.", len(p.Entities), atCyberRisk, atNewsRisk)
	return p
}

func slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.NewReplacer(" ", "-", "(", "", ")", "").Replace(s)
	return s
}
