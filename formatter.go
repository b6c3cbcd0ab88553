package spacetraveling

import (
	"math"
	"strings"
)

// wordsPerMinute is the reading speed used for ReadingTime.
const wordsPerMinute = 200

// FormatPost maps a raw document into a Post. Absent fields become zero values.
func FormatPost(raw RawDocument) Post {
	post := Post{
		ID:          raw.ID,
		UID:         raw.UID,
		PublishedAt: copyString(raw.FirstPublicationDate),
		UpdatedAt:   copyString(raw.LastPublicationDate),
		Title:       raw.Data.Title,
		Subtitle:    raw.Data.Subtitle,
		Author:      raw.Data.Author,
		Content:     make([]Section, 0, len(raw.Data.Content)),
	}
	if raw.Data.Banner != nil {
		post.BannerURL = raw.Data.Banner.URL
	}
	for _, s := range raw.Data.Content {
		body := make([]TextBlock, len(s.Body))
		for i, b := range s.Body {
			body[i] = TextBlock{Type: b.Type, Text: b.Text}
			if b.Spans != nil {
				body[i].Spans = make([]Span, len(b.Spans))
				for j, sp := range b.Spans {
					if sp.Data != nil {
						data := *sp.Data
						sp.Data = &data
					}
					body[i].Spans[j] = sp
				}
			}
		}
		post.Content = append(post.Content, Section{Heading: s.Heading, Body: body})
	}
	return post
}

// FormatSummary maps a raw document into its listing projection.
func FormatSummary(raw RawDocument) PostSummary {
	return PostSummary{
		ID:          raw.ID,
		UID:         raw.UID,
		PublishedAt: copyString(raw.FirstPublicationDate),
		Title:       raw.Data.Title,
		Subtitle:    raw.Data.Subtitle,
		Author:      raw.Data.Author,
	}
}

// FormatPage maps a raw result page into a PostListPage.
func FormatPage(raw RawPage) PostListPage {
	page := PostListPage{
		Results:    make([]PostSummary, len(raw.Results)),
		NextCursor: raw.NextCursor,
	}
	for i, doc := range raw.Results {
		page.Results[i] = FormatSummary(doc)
	}
	return page
}

// ReadingTime estimates the minutes needed to read the post.
func ReadingTime(p Post) int {
	words := 0
	for _, s := range p.Content {
		words += len(strings.Fields(s.Heading))
		for _, b := range s.Body {
			words += len(strings.Fields(b.Text))
		}
	}
	return int(math.Ceil(float64(words) / wordsPerMinute))
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
