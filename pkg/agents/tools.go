package agents

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"time"
)

// The tools simulate their upstream data services. Output is
// deterministic for a given input so tests and replays are stable.

var knownSymbols = map[string]string{
	"AAPL":  "Apple Inc.",
	"TSLA":  "Tesla Inc.",
	"MSFT":  "Microsoft Corporation",
	"GOOGL": "Alphabet Inc.",
	"AMZN":  "Amazon.com Inc.",
	"NVDA":  "NVIDIA Corporation",
	"BYD":   "BYD Company Limited",
	"NIO":   "NIO Inc.",
}

var sectors = []string{
	"Technology", "Consumer Discretionary", "Healthcare",
	"Financial", "Energy", "Industrial",
}

// seededRand returns a generator seeded from the identifier so repeated
// queries for the same input produce identical data.
func seededRand(identifier string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToUpper(identifier)))

	return rand.New(rand.NewSource(int64(h.Sum64())))
}

func stringInput(inputs map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := inputs[key].(string); ok && v != "" {
			return v
		}
	}

	return ""
}

func stockInfo(inputs map[string]any) (any, error) {
	identifier := stringInput(inputs, "symbol", "stock_code", "stock_name")
	if identifier == "" {
		return nil, fmt.Errorf("invalid inputs: stock identifier is required")
	}

	symbol := strings.ToUpper(strings.TrimSpace(identifier))

	name, ok := knownSymbols[symbol]
	if !ok {
		return nil, fmt.Errorf("invalid stock symbol '%s': not found", symbol)
	}

	rng := seededRand(symbol)
	basePrice := 20 + rng.Float64()*400

	return map[string]any{
		"symbol":               symbol,
		"company_name":         name,
		"current_price":        round2(basePrice),
		"price_change_percent": round2(rng.Float64()*16 - 8),
		"volume":               5_000_000 + rng.Intn(95_000_000),
		"market_cap":           round2(basePrice * (500 + rng.Float64()*2500)),
		"pe_ratio":             round2(12 + rng.Float64()*48),
		"pb_ratio":             round2(1 + rng.Float64()*14),
		"dividend_yield":       round2(rng.Float64() * 4),
		"beta":                 round2(0.7 + rng.Float64()*1.8),
		"52_week_high":         round2(basePrice * (1.2 + rng.Float64()*0.6)),
		"52_week_low":          round2(basePrice * (0.5 + rng.Float64()*0.3)),
		"sector":               sectors[rng.Intn(len(sectors))],
		"currency":             "USD",
	}, nil
}

func stockScreener(inputs map[string]any) (any, error) {
	criteria := stringInput(inputs, "criteria", "query")
	if criteria == "" {
		return nil, fmt.Errorf("invalid inputs: screening criteria is required")
	}

	rng := seededRand(criteria)

	matches := make([]map[string]any, 0)
	for symbol, name := range knownSymbols {
		if rng.Intn(2) == 0 {
			continue
		}

		matches = append(matches, map[string]any{
			"symbol":       symbol,
			"company_name": name,
			"pe_ratio":     round2(8 + rng.Float64()*30),
			"market_cap":   round2(1_000 + rng.Float64()*2_000_000),
		})
	}

	return map[string]any{
		"criteria": criteria,
		"matches":  matches,
		"count":    len(matches),
	}, nil
}

func newsQuery(inputs map[string]any) (any, error) {
	topic := stringInput(inputs, "topic", "symbol", "query", "company")
	if topic == "" {
		return nil, fmt.Errorf("invalid inputs: news topic is required")
	}

	rng := seededRand("news:" + topic)
	headlines := []string{
		"%s beats quarterly revenue expectations",
		"%s faces regulatory scrutiny over new product line",
		"Analysts raise price targets for %s after earnings call",
		"%s announces expansion into new markets",
	}

	items := make([]map[string]any, 0, 3)
	for i := 0; i < 3; i++ {
		items = append(items, map[string]any{
			"headline":     fmt.Sprintf(headlines[rng.Intn(len(headlines))], topic),
			"source":       []string{"Reuters", "Bloomberg", "Financial Times"}[rng.Intn(3)],
			"published_at": time.Now().UTC().AddDate(0, 0, -rng.Intn(14)).Format("2006-01-02"),
			"sentiment":    []string{"positive", "neutral", "negative"}[rng.Intn(3)],
		})
	}

	return map[string]any{"topic": topic, "articles": items}, nil
}

func announcementQuery(inputs map[string]any) (any, error) {
	company := stringInput(inputs, "company", "symbol", "query")
	if company == "" {
		return nil, fmt.Errorf("invalid inputs: company is required")
	}

	rng := seededRand("announcement:" + company)
	kinds := []string{"earnings release", "share buyback", "dividend declaration", "executive change"}

	return map[string]any{
		"company": company,
		"announcements": []map[string]any{
			{
				"type":     kinds[rng.Intn(len(kinds))],
				"filed_at": time.Now().UTC().AddDate(0, 0, -rng.Intn(30)).Format("2006-01-02"),
			},
			{
				"type":     kinds[rng.Intn(len(kinds))],
				"filed_at": time.Now().UTC().AddDate(0, 0, -30-rng.Intn(60)).Format("2006-01-02"),
			},
		},
	}, nil
}

func researchReport(inputs map[string]any) (any, error) {
	subject := stringInput(inputs, "symbol", "company", "query")
	if subject == "" {
		return nil, fmt.Errorf("invalid inputs: report subject is required")
	}

	rng := seededRand("report:" + subject)
	ratings := []string{"buy", "outperform", "hold", "underperform"}

	return map[string]any{
		"subject":      subject,
		"rating":       ratings[rng.Intn(len(ratings))],
		"price_target": round2(50 + rng.Float64()*450),
		"firm":         []string{"Morgan Keller", "Atlas Securities", "Hargrove Research"}[rng.Intn(3)],
		"summary":      fmt.Sprintf("Coverage initiated on %s with a %d-month outlook.", subject, 6+rng.Intn(12)),
	}, nil
}

var knowledgeBase = map[string]string{
	"pe ratio":        "The price-to-earnings ratio divides share price by earnings per share; lower values can indicate undervaluation relative to peers.",
	"value investing": "Value investing selects securities trading below intrinsic value, judged by fundamentals such as earnings, book value and cash flow.",
	"diversification": "Diversification reduces unsystematic risk by spreading capital across assets whose returns are not perfectly correlated.",
	"beta":            "Beta measures a security's volatility relative to the overall market; a beta above 1 amplifies market moves.",
}

func knowledgeQuery(inputs map[string]any) (any, error) {
	query := stringInput(inputs, "query", "topic", "question")
	if query == "" {
		return nil, fmt.Errorf("invalid inputs: query is required")
	}

	lowered := strings.ToLower(query)
	for topic, answer := range knowledgeBase {
		if strings.Contains(lowered, topic) {
			return map[string]any{"query": query, "answer": answer, "confidence": "high"}, nil
		}
	}

	return map[string]any{
		"query":      query,
		"answer":     "General financial analysis weighs profitability, growth, leverage and valuation against sector benchmarks.",
		"confidence": "low",
	}, nil
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
