package notionsync

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-insights/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the transactions database.
const (
	PropTransactionID = "Transaction ID"
	PropType          = "Type"
	PropCategory      = "Category"
	PropAmount        = "Amount"
	PropDate          = "Date"
	PropDescription   = "Description"
	PropUser          = "User"
)

// TransactionToNotionProperties converts a transaction to Notion page properties.
func TransactionToNotionProperties(tx *domain.Transaction) notionapi.Properties {
	amount, _ := tx.Amount.Float64()
	date := notionapi.Date(time.Date(tx.Date.Year, tx.Date.Month, tx.Date.Day, 0, 0, 0, 0, time.UTC))

	props := notionapi.Properties{
		PropTransactionID: notionapi.TitleProperty{
			Title: []notionapi.RichText{textValue(tx.ID)},
		},
		PropType: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(tx.Kind)},
		},
		PropCategory: notionapi.SelectProperty{
			Select: notionapi.Option{Name: tx.Category},
		},
		PropAmount: notionapi.NumberProperty{
			Number: amount,
		},
		PropDate: notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &date},
		},
		PropUser: notionapi.RichTextProperty{
			RichText: []notionapi.RichText{textValue(tx.UserID)},
		},
	}

	if tx.Description != "" {
		props[PropDescription] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{textValue(tx.Description)},
		}
	}

	return props
}

func textValue(s string) notionapi.RichText {
	return notionapi.RichText{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: s},
	}
}

// extractTransactionID reads the title property. Returns empty string if not found.
func extractTransactionID(page notionapi.Page) string {
	switch p := page.Properties[PropTransactionID].(type) {
	case *notionapi.TitleProperty:
		return plainText(p.Title)
	case notionapi.TitleProperty:
		return plainText(p.Title)
	}
	return ""
}

// extractUserID reads the owner property. Returns empty string if not found.
func extractUserID(page notionapi.Page) string {
	return richText(page.Properties[PropUser])
}

// pageMatches reports whether the page still mirrors tx.
func pageMatches(page notionapi.Page, tx *domain.Transaction) bool {
	props := page.Properties
	if selectName(props[PropType]) != string(tx.Kind) ||
		selectName(props[PropCategory]) != tx.Category ||
		richText(props[PropDescription]) != tx.Description {
		return false
	}

	amount, ok := number(props[PropAmount])
	if want, _ := tx.Amount.Float64(); !ok || amount != want {
		return false
	}

	start, ok := dateStart(props[PropDate])
	return ok && civil.DateOf(start.UTC()) == tx.Date
}

func selectName(prop notionapi.Property) string {
	switch p := prop.(type) {
	case *notionapi.SelectProperty:
		return p.Select.Name
	case notionapi.SelectProperty:
		return p.Select.Name
	}
	return ""
}

func richText(prop notionapi.Property) string {
	switch p := prop.(type) {
	case *notionapi.RichTextProperty:
		return plainText(p.RichText)
	case notionapi.RichTextProperty:
		return plainText(p.RichText)
	}
	return ""
}

func number(prop notionapi.Property) (float64, bool) {
	switch p := prop.(type) {
	case *notionapi.NumberProperty:
		return p.Number, true
	case notionapi.NumberProperty:
		return p.Number, true
	}
	return 0, false
}

func dateStart(prop notionapi.Property) (time.Time, bool) {
	var obj *notionapi.DateObject
	switch p := prop.(type) {
	case *notionapi.DateProperty:
		obj = p.Date
	case notionapi.DateProperty:
		obj = p.Date
	}
	if obj == nil || obj.Start == nil {
		return time.Time{}, false
	}
	return time.Time(*obj.Start), true
}

// plainText joins the segments, falling back to the request-side content.
func plainText(parts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range parts {
		switch {
		case rt.PlainText != "":
			b.WriteString(rt.PlainText)
		case rt.Text != nil:
			b.WriteString(rt.Text.Content)
		}
	}
	return b.String()
}
