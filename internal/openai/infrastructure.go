package openai

import (
	"context"
	"regexp"
	"strings"
)

const infrastructureSystemPrompt = "You are an expert real estate analyst specializing in infrastructure analysis and investment research. You extract key infrastructure information from property reports and format it according to specific guidelines."

func infrastructurePrompt(text string) string {
	return `I need you to analyze this Hotspotting property report and extract infrastructure information into 7 specific sections. Please follow the format exactly as described below.

PDF TEXT:
` + text + `

---

Please extract and format the infrastructure information into the following 7 sections:

**SECTION 1: Population Growth Context**
- Write a plain paragraph (no bullet points) describing population growth trends and context
- Include relevant statistics and timeframes
- Keep it concise (2-4 sentences)

**SECTION 2: Residential**
- List residential infrastructure projects
- Format: **$[cost]** [project description]
- Include multiple projects if available

**SECTION 3: Industrial**
- List industrial infrastructure projects
- Format: **$[cost]** [project description]
- Include multiple projects if available

**SECTION 4: Commercial and Civic**
- List commercial and civic infrastructure projects
- Format: **$[cost]** [project description]
- Include multiple projects if available

**SECTION 5: Health and Education**
- List health and education infrastructure projects
- Format: **$[cost]** [project description]
- Include multiple projects if available

**SECTION 6: Transport**
- List transport infrastructure projects
- Format: **$[cost]** [project description]
- Include multiple projects if available

**SECTION 7: Job Implications**
- Summarize job creation impacts
- Include both construction jobs and ongoing jobs
- Format: [number] construction jobs, [number] ongoing jobs

---

IMPORTANT FORMATTING RULES:
1. Use **bold** for dollar amounts (e.g., **$500 million**)
2. Section 1 should be a plain paragraph (no bullets)
3. Sections 2-6 should have project entries with costs
4. Section 7 should summarize job numbers
5. If no information is found for a section, write "No specific information available in this report"
6. Use clear section headers: "SECTION 1: Population Growth Context", "SECTION 2: Residential", etc.
7. Be concise but include key details

Please provide the output with clear section headers so I can parse it programmatically.`
}

// ReportSections are the seven infrastructure sections of a report summary.
type ReportSections struct {
	PopulationGrowthContext string `json:"populationGrowthContext"`
	Residential             string `json:"residential"`
	Industrial              string `json:"industrial"`
	CommercialAndCivic      string `json:"commercialAndCivic"`
	HealthAndEducation      string `json:"healthAndEducation"`
	Transport               string `json:"transport"`
	JobImplications         string `json:"jobImplications"`
}

// fields lists the sections in report order, numbered from 1.
func (s *ReportSections) fields() []*string {
	return []*string{
		&s.PopulationGrowthContext, &s.Residential, &s.Industrial, &s.CommercialAndCivic,
		&s.HealthAndEducation, &s.Transport, &s.JobImplications,
	}
}

type InfrastructureSummary struct {
	Sections ReportSections `json:"sections"`
	MainBody string         `json:"mainBody"`
}

// InfrastructureSummary summarises a report's text into the seven sections
// and the combined main body stored in the highlights sheet.
func (c *Client) InfrastructureSummary(ctx context.Context, text string) (InfrastructureSummary, error) {
	content, err := c.Complete(ctx, ChatRequest{
		Messages: []Message{
			{Role: "system", Content: infrastructureSystemPrompt},
			{Role: "user", Content: infrastructurePrompt(text)},
		},
		Temperature: 0.3,
		MaxTokens:   4000,
	})
	if err != nil {
		return InfrastructureSummary{}, err
	}
	sections := ParseSections(content)
	return InfrastructureSummary{Sections: sections, MainBody: sections.MainBody()}, nil
}

var (
	sectionHeader = regexp.MustCompile(`(?i)SECTION\s+(\d+):\s*([^\n]+)\n`)

	// Headers without the SECTION prefix, in report order.
	sectionLines = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(SECTION\s+1|Population Growth Context)`),
		regexp.MustCompile(`(?i)^(SECTION\s+2|Residential)`),
		regexp.MustCompile(`(?i)^(SECTION\s+3|Industrial)`),
		regexp.MustCompile(`(?i)^(SECTION\s+4|Commercial)`),
		regexp.MustCompile(`(?i)^(SECTION\s+5|Health|Education)`),
		regexp.MustCompile(`(?i)^(SECTION\s+6|Transport)`),
		regexp.MustCompile(`(?i)^(SECTION\s+7|Job)`),
	}
)

// ParseSections splits a model reply on its "SECTION n: Title" headers. When
// no population section comes out of that, headers are matched line by line
// on their titles instead.
func ParseSections(content string) ReportSections {
	var s ReportSections
	fields := s.fields()

	matches := sectionHeader.FindAllStringSubmatchIndex(content, -1)
	for i, m := range matches {
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		idx := sectionIndex(content[m[2]:m[3]], strings.ToLower(strings.TrimSpace(content[m[4]:m[5]])))
		if idx >= 0 {
			*fields[idx] = strings.TrimSpace(content[m[1]:end])
		}
	}
	if s.PopulationGrowthContext != "" || strings.TrimSpace(content) == "" {
		return s
	}

	current := -1
	var lines []string
	flush := func() {
		if current >= 0 && len(lines) > 0 {
			*fields[current] = strings.TrimSpace(strings.Join(lines, "\n"))
		}
		lines = nil
	}
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if idx := headerLine(trimmed); idx >= 0 {
			flush()
			current = idx
			continue
		}
		if trimmed != "" && current >= 0 {
			lines = append(lines, line)
		}
	}
	flush()
	return s
}

func sectionIndex(number, title string) int {
	if n := strings.TrimLeft(number, "0"); len(n) == 1 && n[0] >= '1' && n[0] <= '7' {
		return int(n[0] - '1')
	}
	switch {
	case strings.Contains(title, "population"):
		return 0
	case strings.Contains(title, "residential"):
		return 1
	case strings.Contains(title, "industrial"):
		return 2
	case strings.Contains(title, "commercial"):
		return 3
	case strings.Contains(title, "health"), strings.Contains(title, "education"):
		return 4
	case strings.Contains(title, "transport"):
		return 5
	case strings.Contains(title, "job"):
		return 6
	}
	return -1
}

func headerLine(line string) int {
	for i, re := range sectionLines {
		if re.MatchString(line) {
			return i
		}
	}
	return -1
}

var sectionTitles = []string{"", "Residential", "Industrial", "Commercial and Civic", "Health and Education", "Transport", "Job Implications"}

// MainBody joins the non-empty sections, each after the first under a bold
// heading.
func (s ReportSections) MainBody() string {
	var parts []string
	for i, f := range s.fields() {
		if *f == "" {
			continue
		}
		if sectionTitles[i] == "" {
			parts = append(parts, *f)
			continue
		}
		parts = append(parts, "**"+sectionTitles[i]+":**\n"+*f)
	}
	return strings.Join(parts, "\n\n")
}
