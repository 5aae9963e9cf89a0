package usecase

import (
	"html"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/xavierca1/leadforge/internal/entity"
)

const companyFallback = "their company"

// Content is a generated subject and HTML body for one lead.
type Content struct {
	Subject  string
	Body     string
	Category entity.TemplateCategory
	Tone     entity.Tone
	// Fallback is set when the requested category/tone pair had no entry
	// and the default proposal/professional copy was used instead.
	Fallback bool
}

type copyEntry struct {
	subject string
	body    string
}

var (
	DefaultCategory = entity.CategoryProposal
	DefaultTone     = entity.ToneProfessional
)

var catalog = map[entity.TemplateCategory]map[entity.Tone]copyEntry{
	entity.CategoryIntroduction: {
		entity.ToneProfessional: {
			subject: "Introducing ourselves to {{company}}",
			body: `<p>I lead partnerships on our side and have been following the work {{company}} is doing.</p>
<p>We help teams like yours cut the time spent on repetitive operations so they can focus on customers. I would value fifteen minutes to learn how you handle this today.</p>`,
		},
		entity.ToneFriendly: {
			subject: "Hi {{first_name}}, quick hello",
			body: `<p>I came across {{company}} this week and wanted to say hello.</p>
<p>We build tools that take the busywork off small teams. If that sounds useful, I would love to hear what your week usually looks like.</p>`,
		},
		entity.ToneCasual: {
			subject: "Hey {{first_name}}",
			body: `<p>Short one: we make the boring parts of running {{company}} a little less boring.</p>
<p>Worth a chat?</p>`,
		},
	},
	entity.CategoryFollowup: {
		entity.ToneProfessional: {
			subject: "Following up, {{first_name}}",
			body: `<p>I am following up on my previous note about supporting {{company}}.</p>
<p>If the timing is not right, a short reply letting me know when to check back would be appreciated.</p>`,
		},
		entity.ToneFriendly: {
			subject: "Checking in, {{first_name}}",
			body: `<p>Just floating my last message back to the top of your inbox.</p>
<p>Happy to send over a few examples from teams similar to {{company}} if that helps.</p>`,
		},
	},
	entity.CategoryProposal: {
		entity.ToneProfessional: {
			subject: "A proposal for {{company}}",
			body: `<p>Based on what we know about {{company}}, we have put together a proposal covering onboarding, support and pricing.</p>
<p>It includes a phased rollout so your team can evaluate results before committing further. I can walk you through it whenever suits you.</p>`,
		},
		entity.ToneFriendly: {
			subject: "{{first_name}}, here is what we had in mind",
			body: `<p>I sketched out how we could work together with {{company}}.</p>
<p>Nothing is set in stone, so tell me what you would change and I will adjust it.</p>`,
		},
		entity.ToneFormal: {
			subject: "Formal proposal for {{company_name}}",
			body: `<p>Please find below a summary of our proposal for {{company_name}}.</p>
<p>The engagement comprises an initial assessment, implementation and ongoing support under a fixed monthly fee. We remain at your disposal for any clarification.</p>`,
		},
		entity.TonePersuasive: {
			subject: "{{first_name}}, a faster path for {{company}}",
			body: `<p>Teams that adopted our approach last year reduced their manual workload within the first month.</p>
<p>We would like {{company}} to be next, and we have reserved onboarding capacity for you this quarter.</p>`,
		},
	},
	entity.CategoryMeeting: {
		entity.ToneProfessional: {
			subject: "Meeting request: {{company}}",
			body: `<p>Would you be available for a thirty minute call next week to discuss priorities at {{company}}?</p>
<p>Reply with a couple of slots and I will send an invitation.</p>`,
		},
	},
	entity.CategoryThankYou: {
		entity.ToneProfessional: {
			subject: "Thank you, {{first_name}}",
			body: `<p>Thank you for your time today. I will share the notes and next steps with you shortly.</p>`,
		},
		entity.ToneFriendly: {
			subject: "Thanks so much, {{first_name}}",
			body: `<p>Really enjoyed talking with you. I will follow up with everything we discussed.</p>`,
		},
	},
	entity.CategoryReminder: {
		entity.ToneProfessional: {
			subject: "Reminder for {{company}}",
			body: `<p>This is a short reminder about our pending conversation regarding {{company}}.</p>
<p>Let me know if anything changed on your side.</p>`,
		},
	},
}

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate returns personalized copy for the lead. Unknown category/tone
// pairs fall back to proposal/professional and report it via Fallback.
func (g *Generator) Generate(category entity.TemplateCategory, tone entity.Tone, lead *entity.Lead) Content {
	entry, ok := catalog[category][tone]
	out := Content{Category: category, Tone: tone}
	if !ok {
		entry = catalog[DefaultCategory][DefaultTone]
		out.Category = DefaultCategory
		out.Tone = DefaultTone
		out.Fallback = true
	}
	out.Subject = PersonalizeText(entry.subject, lead)
	out.Body = PersonalizeHTML(entry.body, lead)
	return out
}

// PersonalizeText substitutes lead placeholders in plain text such as a subject.
func PersonalizeText(text string, lead *entity.Lead) string {
	return placeholderReplacer(lead, func(s string) string { return s }).Replace(text)
}

// PersonalizeHTML substitutes lead placeholders, escaping the lead values.
func PersonalizeHTML(text string, lead *entity.Lead) string {
	return placeholderReplacer(lead, html.EscapeString).Replace(text)
}

func placeholderReplacer(lead *entity.Lead, escape func(string) string) *strings.Replacer {
	first := cases.Title(language.Und).String(strings.ToLower(lead.FirstName()))
	if first == "" {
		first = "there"
	}
	full := strings.TrimSpace(lead.Name)
	if full == "" {
		full = first
	}
	company := strings.TrimSpace(lead.Company)
	if company == "" {
		company = companyFallback
	}

	pairs := []string{
		"{{first_name}}", first,
		"{{last_name}}", lead.LastName(),
		"{{full_name}}", full,
		"{{name}}", full,
		"{{email}}", lead.Email,
		"{{company_name}}", company,
		"{{company}}", company,
		"{{phone}}", lead.Phone,
		"{{status}}", string(lead.Status),
		"[company name]", company,
		"[name]", full,
		"[email]", lead.Email,
		"[company]", company,
		"[phone]", lead.Phone,
		"[status]", string(lead.Status),
	}
	for i := 1; i < len(pairs); i += 2 {
		pairs[i] = escape(pairs[i])
	}
	return strings.NewReplacer(pairs...)
}
