package interview

// Scripted INTRO exchanges, asked in order.
var introPrompts = []string{
	"Hello! I'm your spreadsheet interviewer today. We will cover formulas, data work and analysis, " +
		"and the questions adapt to your answers. To start, tell me about your role and how you use Excel day to day.",
	"Which Excel features do you rely on most, and which would you like to get better at?",
	"On a scale from 1 to 10, how would you rate your Excel skills, and why?",
}

// Scripted REVIEW prompts, asked in order.
var reviewPrompts = []string{
	"Thank you for working through the case study. Which question today was the hardest for you, and why?",
	"Before we conclude, is there anything you would like to clarify about your earlier answers, " +
		"or an area you plan to strengthen next?",
}
