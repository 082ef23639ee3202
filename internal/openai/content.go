package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const ContentWhyProperty = "why-property"

const (
	summaryModel = "gpt-4o"
	parseModel   = "gpt-4o-mini"

	// maxReportChars bounds the report text sent for parsing.
	maxReportChars = 15000
)

const summarySystemPrompt = `You are a Property Intelligence Engine that emulates the combined behavior of:
- A Property Summary Tool (primary)
- A Proximity Tool (supporting)

You generate structured, conservative, professional summaries of residential properties.

You do not invent data.
You do not expose internal reasoning or formulas.
You clearly label uncertainty and limitations.

When given a property address, you must:
1. Normalize the property and location
2. Assess proximity to key amenities (1x kindergarten, 3x schools, 2x supermarkets, 2x hospitals, 1x train station, 1x bus stop, 1x beach, 1x airport, 1x closest capital city, 3x child day cares)
3. Generate investment reasons (7 detailed reasons with real suburb/LGA-level insights)
4. Provide short one-line versions of the reasons

Output format:
- First line: Property address
- Next lines: List of 13 amenities (names only, no distances)
- Then: Full Detailed Reasons (7 investment-based reasons)
- Then: Short One-Line Versions Only (just headings)

Use professional, neutral, analytical tone. No sales language. No absolutes or guarantees.`

const parseSystemPrompt = `You are a data extraction assistant. Extract structured information from Hotspotting property reports.

Return a JSON object with these fields:
- reportName: The report/region name (e.g., "Fraser Coast", "Sunshine Coast")
- validPeriod: The time period (e.g., "October 2025 - January 2026")
- mainBody: A comprehensive summary combining all sections (Population Growth Context, Residential, Industrial, Commercial, Health & Education, Transport, Job Implications)

Format the mainBody as a flowing narrative, not bullet points. Include specific dollar amounts, project names, and key statistics.`

func whyPropertyPrompt(suburb, lga string) string {
	return fmt.Sprintf(`Generate 7 detailed investment-based reasons why this property would appeal to investors. Use a professional, confident tone suited for a real estate investment brief. Each reason should start with a bold heading, followed by 2-4 well-written sentences explaining the insight clearly.

Focus on real investor themes like:
- Capital growth trends
- Rental yield strength
- Vacancy rates
- Infrastructure investment
- Affordability advantage
- Transport access
- Tenant demand

Use the specific suburb and LGA context when relevant.

Suburb: %s
LGA: %s

Important formatting instructions:
- Include only the full detailed reasons
- Do not include a short summary list or single-line versions at the end
- Each heading must be bold (Markdown style, e.g., **Strong Capital Growth**)
- No bullet points, numbers, or extra spacing between entries`, suburb, lga)
}

// GenerateContent writes investment copy for a suburb. Only the why-property
// content type exists.
func (c *Client) GenerateContent(ctx context.Context, suburb, lga, contentType string) (string, error) {
	if contentType != ContentWhyProperty {
		return "", ErrInvalidContentType
	}
	return c.Complete(ctx, ChatRequest{
		Messages: []Message{
			{Role: "system", Content: "You are a real estate investment summary tool."},
			{Role: "user", Content: whyPropertyPrompt(suburb, lga)},
		},
		Temperature: 0.7,
	})
}

type PropertySummary struct {
	Proximity       string `json:"proximity"`
	WhyThisProperty string `json:"whyThisProperty"`
	FullResponse    string `json:"fullResponse"`
}

func (c *Client) PropertySummary(ctx context.Context, propertyAddress string) (PropertySummary, error) {
	content, err := c.Complete(ctx, ChatRequest{
		Model: summaryModel,
		Messages: []Message{
			{Role: "system", Content: summarySystemPrompt},
			{Role: "user", Content: propertyAddress},
		},
		Temperature: 0.7,
		MaxTokens:   3000,
	})
	if err != nil {
		return PropertySummary{}, err
	}
	s := SplitSummary(content)
	s.FullResponse = content
	return s, nil
}

// SplitSummary separates the address and amenity lines from the investment
// reasons. The first non-blank line always belongs to the proximity block;
// the reasons start at the first later line mentioning investment or reasons.
func SplitSummary(content string) PropertySummary {
	var proximity, why []string
	reasons := false
	first := true
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if first {
			proximity = append(proximity, line)
			first = false
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "investment") || strings.Contains(lower, "reason") || strings.HasPrefix(line, "•") {
			reasons = true
		}
		if reasons {
			why = append(why, line)
		} else {
			proximity = append(proximity, line)
		}
	}
	return PropertySummary{
		Proximity:       strings.TrimSpace(strings.Join(proximity, "\n")),
		WhyThisProperty: strings.TrimSpace(strings.Join(why, "\n")),
	}
}

type ParsedReport struct {
	ReportName  string `json:"reportName"`
	ValidPeriod string `json:"validPeriod"`
	MainBody    string `json:"mainBody"`
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n\\s*```")

// ParseReport asks the model to structure a Hotspotting report. Values the
// model leaves empty fall back to reportName and validPeriod.
func (c *Client) ParseReport(ctx context.Context, text, reportName, validPeriod string) (ParsedReport, error) {
	if len([]rune(text)) > maxReportChars {
		text = string([]rune(text)[:maxReportChars])
	}
	content, err := c.Complete(ctx, ChatRequest{
		Model: parseModel,
		Messages: []Message{
			{Role: "system", Content: parseSystemPrompt},
			{Role: "user", Content: "Extract information from this Hotspotting report:\n\n" + text},
		},
		Temperature: 0.3,
		MaxTokens:   2000,
	})
	if err != nil {
		return ParsedReport{}, err
	}

	parsed, err := ExtractJSON(content)
	if err != nil {
		return ParsedReport{}, err
	}
	if parsed.ReportName == "" {
		parsed.ReportName = reportName
	}
	if parsed.ValidPeriod == "" {
		parsed.ValidPeriod = validPeriod
	}
	return parsed, nil
}

// ExtractJSON decodes a report from a reply that is either a fenced code
// block or bare JSON.
func ExtractJSON(content string) (ParsedReport, error) {
	raw := strings.TrimSpace(content)
	if m := fencedJSON.FindStringSubmatch(content); m != nil {
		raw = m[1]
	}
	var out ParsedReport
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return ParsedReport{}, fmt.Errorf("AI returned invalid format: %w", err)
	}
	return out, nil
}
