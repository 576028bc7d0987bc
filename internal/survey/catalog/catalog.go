// Package catalog holds the fixed option sets offered by the onboarding survey.
// The same lists are shared by the candidate survey and recruiter-facing forms.
package catalog

import "slices"

// EducationLevels are the accepted answers for the education question.
var EducationLevels = []string{
	"High School",
	"Some College",
	"Bachelors Degree",
	"Masters Degree",
	"PhD",
	"Self-Taught",
	"Other",
}

// Industries are the accepted answers for the industry question.
var Industries = []string{
	"Technology & Software",
	"Artificial Intelligence & ML",
	"Finance & Banking",
	"Healthcare & Medical",
	"E-commerce & Retail",
	"Education & Learning",
	"Product Management",
	"Consulting & Services",
	"Marketing & Advertising",
	"Operations & Supply Chain",
	"Data Science & Analytics",
	"Design & Creative",
	"Startup Founder",
	"Government & Public Sector",
	"Non-profit",
	"Transportation & Logistics",
	"Real Estate & Property",
	"Manufacturing",
	"Agriculture & Food",
	"Media & Entertainment",
	"Legal Services",
	"Hospitality & Tourism",
	"Human Resources",
	"Sales & Business Development",
	"Research & Development",
	"Quality Assurance",
	"Customer Support",
	"IT Infrastructure",
	"Other",
}

// Strengths are the selectable strength areas.
var Strengths = []string{
	"Leadership & Management",
	"Problem Solving",
	"Coding & Development",
	"Design Thinking",
	"Storytelling & Communication",
	"Data Analysis",
	"Marketing Strategy",
	"Technical Communication",
	"Teamwork & Collaboration",
}

// Learning preference values.
const (
	LearningTrialError = "trial-error"
	LearningReading    = "reading"
	LearningBoth       = "both"
)

// LearningPreferences are the three accepted learning preference values.
var LearningPreferences = []string{LearningTrialError, LearningReading, LearningBoth}

// fallbackIndustry supplies mission options for industries without a dedicated list.
const fallbackIndustry = "Other"

const defaultQuestion = "What areas interest you most?"

var industryOptions = map[string][]string{
	"Technology & Software": {
		"Cloud Infrastructure (AWS, Azure, GCP)",
		"AI & Machine Learning",
		"Frontend Development (React, Vue, Angular)",
		"Backend Development (Node, Python, Java)",
		"Full Stack Development",
		"DevOps & Infrastructure",
		"Mobile Development (iOS, Android, React Native)",
		"Web3 & Blockchain",
		"Cybersecurity",
		"Game Development",
	},
	"Finance & Banking": {
		"Trading & Markets",
		"Risk Management",
		"Wealth Management",
		"Corporate Finance",
		"Investment Banking",
		"Fintech & Innovation",
		"Accounting & Audit",
		"Quantitative Analysis",
	},
	"Product Management": {
		"Consumer Products",
		"B2B SaaS",
		"Growth & Retention",
		"Analytics & Insights",
		"Marketplace",
		"Mobile Apps",
		"Platform Strategy",
	},
	"Healthcare & Medical": {
		"Clinical Care",
		"Medical Technology",
		"Healthcare Analytics",
		"Public Health",
		"Biotech & Research",
		"Digital Health",
		"Health Administration",
	},
	"Marketing & Advertising": {
		"Growth Marketing",
		"Content Marketing",
		"Social Media & Community",
		"Brand Strategy",
		"Performance Marketing",
		"Marketing Analytics",
		"Product Marketing",
	},
	"Education & Learning": {
		"Curriculum Design",
		"EdTech & Learning Platforms",
		"Student Engagement",
		"Instructional Design",
		"Educational Research",
		"Corporate Training",
	},
	"Design & Creative": {
		"UI/UX Design",
		"Graphic Design",
		"Motion Design",
		"Product Design",
		"Web Design",
		"Branding",
		"Creative Direction",
	},
	"E-commerce & Retail": {
		"Store Operations",
		"Customer Experience",
		"Logistics & Fulfillment",
		"Merchandising",
		"Growth & Conversion",
		"Marketplace Management",
	},
	"Data Science & Analytics": {
		"Business Analytics",
		"Data Engineering",
		"Predictive Analytics",
		"Data Visualization",
		"Statistical Analysis",
		"Database Management",
	},
	"Startup Founder": {
		"Pre-launch / Idea Stage",
		"Early Stage (0-1M ARR)",
		"Growth Stage (1-10M ARR)",
		"Scale Stage (10M+ ARR)",
	},
	"Other": {
		"Technical/Engineering",
		"Management/Leadership",
		"Sales & Business Development",
		"Operations",
		"Creative/Design",
		"Analytics/Data",
		"Other (specify)",
	},
}

var questionText = map[string]string{
	"Technology & Software":    "Which tech domains interest you most?",
	"Finance & Banking":        "What's your finance specialization?",
	"Product Management":       "What's your PM focus?",
	"Healthcare & Medical":     "Healthcare specialization?",
	"Marketing & Advertising":  "Your marketing expertise?",
	"Education & Learning":     "What's your education focus?",
	"Design & Creative":        "Design specialization?",
	"E-commerce & Retail":      "E-commerce expertise?",
	"Data Science & Analytics": "Analytics focus?",
	"Startup Founder":          "What stage is your startup?",
	"Other":                    "Tell us more about your role:",
}

// IndustryOptions returns a fresh copy of the mission-focus options for an industry.
// Industries without a dedicated list (including the empty string) get the "Other" list.
func IndustryOptions(industry string) []string {
	opts, ok := industryOptions[industry]
	if !ok {
		opts = industryOptions[fallbackIndustry]
	}
	return slices.Clone(opts)
}

// QuestionText returns the mission-focus prompt shown for an industry.
func QuestionText(industry string) string {
	if q, ok := questionText[industry]; ok {
		return q
	}
	return defaultQuestion
}

// IsEducationLevel reports whether v is an accepted education level.
func IsEducationLevel(v string) bool { return slices.Contains(EducationLevels, v) }

// IsIndustry reports whether v is an accepted industry.
func IsIndustry(v string) bool { return slices.Contains(Industries, v) }

// IsStrength reports whether v is a selectable strength area.
func IsStrength(v string) bool { return slices.Contains(Strengths, v) }

// IsMissionOption reports whether option belongs to the mission-focus list of industry.
func IsMissionOption(industry, option string) bool {
	opts, ok := industryOptions[industry]
	if !ok {
		opts = industryOptions[fallbackIndustry]
	}
	return slices.Contains(opts, option)
}
