package pipeline

import "time"

const (
	// DefaultModelName is the default Gemini model used for statement extraction.
	DefaultModelName = "gemini-2.5-flash"

	// StatementsPrefix is the object prefix uploaded statements live under.
	StatementsPrefix = "statements"

	// MaxStatementSize caps an uploaded statement at 20 MiB.
	MaxStatementSize = 20 << 20

	// DefaultProcessTimeout bounds a call to the statement-processing service.
	DefaultProcessTimeout = 2 * time.Minute

	// UncategorizedCategory is assigned when the extractor leaves category empty.
	UncategorizedCategory = "Uncategorized"
)
