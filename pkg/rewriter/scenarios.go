package rewriter

// Example illustrates one scenario or task in the prompt.
type Example struct {
	Input   string
	OldChat string
	Output  string
}

// Scenario is one mutually exclusive rewrite rule. Scenarios are listed
// in precedence order; the first that applies wins.
type Scenario struct {
	Name         string
	Instructions []string
	Examples     []Example
}

// Task is an explicit transformation a user can ask for.
type Task struct {
	Name         string
	Instructions []string
	Examples     []Example
}

// Scenarios returns the rewrite scenarios in precedence order.
func Scenarios() []Scenario {
	return []Scenario{
		{
			Name: "old_chat is empty",
			Instructions: []string{
				"Return user_input as output_query without modification, apart from translation to English.",
			},
			Examples: []Example{
				{Input: "Hi", Output: "Hi <stop>"},
				{Input: "I need a break as I am sick and need to remotely work for 3 months.",
					Output: "I need a break as I am sick and need to remotely work for 3 months. <stop>"},
				{Input: "you useless piece of junk, answer me!", Output: "DO NOT USE PROFANE LANGUAGE <stop>"},
			},
		},
		{
			Name: "old_chat exists but is not related to user_input",
			Instructions: []string{
				"Check whether user_input is contextually related to old_chat. When they are unrelated, return user_input as output_query.",
				"When both talk about the same kind of thing (for example leaves or policies), rephrase only if the specific type matches.",
				"Never borrow context from old_chat when the topics differ, even if the domain is similar.",
				"When user_input names a policy, program, tool or training without enough detail, take the missing detail from old_chat only if the topics align.",
			},
			Examples: []Example{
				{Input: "I need a break as I am sick and need to remotely work for 3 months.",
					OldChat: "<user>: what is maternity leave?",
					Output:  "What is the remote work policy for employees due to illness? <stop>"},
				{Input: "Is there additional leaves for wedding in US?",
					OldChat: "<user>: what are the retirement bonus for US employees?",
					Output:  "Is there any additional leave for a wedding in US? <stop>"},
			},
		},
		{
			Name: "old_chat is related to user_input",
			Instructions: []string{
				"When user_input names only a country or another qualifier, take the policy, program, tool or training from the latest <user> entry and ask about it for that qualifier.",
				"Use at most the last 3 <user> entries of old_chat; they hold the most recent context.",
				"Keep the original intent of user_input and add only the specifics it lacks (entity, policy or program name, qualifier).",
				"Produce one informative, concise, self-contained question.",
			},
			Examples: []Example{
				{Input: "Now tell me about for PH?",
					OldChat: "<user>: what are maternity leave policy for US?",
					Output:  "What is the Maternity Leave policy for PH? <stop>"},
				{Input: "what about US?",
					OldChat: "<user>: does Canada has the pension policy?",
					Output:  "Does US have the pension policy? <stop>"},
			},
		},
	}
}

// Tasks returns the explicit tasks the rewriter understands.
func Tasks() []Task {
	return []Task{
		{
			Name: "Text Rephrasing",
			Instructions: []string{
				"Rephrase the text as a query, considering old_chat while keeping the relevant context.",
				"Queries are either general or enterprise; apply the same scenarios to both.",
			},
		},
		{
			Name: "Text Summarization",
			Instructions: []string{
				"Applies when the user asks to shorten or summarize.",
				"Keep the actual meaning and key words while making the text concise.",
			},
			Examples: []Example{
				{Input: "Automated the preparation, validation, and processing of reports for the Summit Technical Operations Team from Document Management Systems. This streamlines data updates for Summit Learn Content Owners.",
					Output: "Automation streamlines report preparation and processing for the Summit Technical Operations Team, improving data updates for Summit Learn Content Owners."},
			},
		},
		{
			Name: "Text Enhancement",
			Instructions: []string{
				"Applies when the user asks to enhance, improve or rewrite longer.",
				"Improve clarity and presentation without altering the core meaning.",
			},
			Examples: []Example{
				{Input: "Automated the preparation, validation, and processing of reports for the Summit Technical Operations Team.",
					Output: "The automation of report preparation, validation, and processing significantly improves efficiency for the Summit Technical Operations Team."},
			},
		},
	}
}
