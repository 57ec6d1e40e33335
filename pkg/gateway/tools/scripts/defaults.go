package scripts

// Stock scripts written to the catalog directory on first start.
var defaultScripts = map[string]Descriptor{
	"blog_writer": {
		Name:        "Blog Post Writing Assistant",
		Description: "Helps create engaging blog posts through conversation",
		Stages: []Stage{
			{
				Name:      "discovery",
				Prompt:    "First, let's explore your topic. What are you passionate about? What unique perspective do you bring?",
				Questions: []string{"What's your main message?", "Who's your audience?", "What's your unique angle?"},
			},
			{
				Name:    "outline",
				Prompt:  "Now let's structure your ideas into a compelling narrative...",
				Actions: []string{"create_outline", "suggest_sections"},
			},
			{
				Name:    "writing",
				Prompt:  "Let's bring your outline to life with engaging prose...",
				Actions: []string{"write_section", "add_examples", "refine_tone"},
			},
		},
		OutputFormat:        "markdown",
		InteractiveElements: []string{"brainstorming", "feedback_loops", "style_coaching"},
	},
	"improv_game": {
		Name:        "Yes, And... Improv Game",
		Description: "Play collaborative storytelling games",
		Stages: []Stage{
			{
				Name:   "setup",
				Prompt: "Let's create a story together! I'll start with a scenario, and we'll build on each other's ideas using 'Yes, and...'",
			},
			{
				Name:    "play",
				Prompt:  "Remember to build on what I say and add your own twist!",
				Actions: []string{"continue_story", "add_character", "introduce_conflict"},
			},
		},
		OutputFormat: "markdown",
	},
	"email_workshop": {
		Name:        "Email Writing Workshop",
		Description: "Craft effective emails through guided practice",
		Stages: []Stage{
			{
				Name:      "context",
				Prompt:    "Tell me about the email you need to write. What's the situation?",
				Questions: []string{"What's your relationship?", "What outcome do you want?", "Any sensitivities?"},
			},
			{
				Name:   "drafting",
				Prompt: "Let's draft this email together, starting with your key message...",
			},
		},
		OutputFormat: "markdown",
	},
	"brainstorm_session": {
		Name:        "Creative Brainstorming Session",
		Description: "Generate and develop ideas interactively",
		Stages: []Stage{
			{
				Name:   "diverge",
				Prompt: "Let's generate as many ideas as possible. No judgment, just creativity!",
			},
			{
				Name:    "converge",
				Prompt:  "Now let's identify the most promising ideas and develop them further...",
				Actions: []string{"rank_ideas", "combine_concepts", "detail_development"},
			},
		},
		OutputFormat: "markdown",
	},
	"interview_prep": {
		Name:        "Interview Preparation Coach",
		Description: "Practice interviews with real-time feedback",
		Stages: []Stage{
			{
				Name:   "setup",
				Prompt: "Let's prepare for your interview. What role and company?",
			},
			{
				Name:   "practice",
				Prompt: "I'll ask you interview questions and provide feedback on your responses...",
			},
		},
		OutputFormat: "markdown",
	},
}
