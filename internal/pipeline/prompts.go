package pipeline

import (
	"strings"
)

const statementPrompt = "You are a financial statement parser for personal bank statements.\n\n" +
	"Task:\n" +
	"- Parse ALL transactions in the attached statement.\n" +
	"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
	"- Output a JSON array of objects.\n\n" +
	"Each object must have these fields:\n" +
	"- \"type\": \"expense\" for money OUT, \"income\" for money IN\n" +
	"- \"amount\": number, always positive\n" +
	"- \"date\": string, ISO format \"YYYY-MM-DD\"\n" +
	"- \"description\": string\n" +
	"- \"category\": string (one of the categories below)\n\n"

const statementRules = "Rules:\n" +
	"- If the statement has separate \"paid out\" / \"paid in\" columns, use them to pick \"type\".\n" +
	"- Skip opening/closing balance lines; they are not transactions.\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Do NOT use ```json or any Markdown.\n" +
	"Output must begin with \"[\" and end with \"]\".\n"

// buildCategoriesPrompt lists the categories the model may assign.
func buildCategoriesPrompt(categories []string) string {
	var b strings.Builder
	b.WriteString("Use ONLY the following categories:\n\n")
	for _, c := range categories {
		b.WriteString("  - " + c + "\n")
	}
	b.WriteString("\nCATEGORY ASSIGNMENT RULES:\n")
	b.WriteString("1. Category must be EXACTLY one of the names shown above (case-sensitive).\n")
	b.WriteString("2. If you are unsure, use \"" + UncategorizedCategory + "\".\n")
	b.WriteString("3. For Uber/taxi rides and public transit, use \"Transportation\".\n")
	return b.String()
}

func buildStatementPrompt(categories []string) string {
	return statementPrompt + buildCategoriesPrompt(categories) + "\n" + statementRules
}
