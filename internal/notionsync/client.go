package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
)

// NotionClient implements NotionService over the Notion REST API.
type NotionClient struct {
	api *notionapi.Client
}

// NewNotionClient authenticates with an internal integration token.
func NewNotionClient(token string) *NotionClient {
	return &NotionClient{api: notionapi.NewClient(notionapi.Token(token))}
}

func (n *NotionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	page, err := n.api.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	})
	if err != nil {
		return nil, fmt.Errorf("NotionClient.CreatePage: database %s: %w", databaseID, err)
	}
	return page, nil
}

// UpdatePage overwrites the given properties; properties not listed are left as they are.
func (n *NotionClient) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	page, err := n.api.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Properties: properties})
	if err != nil {
		return nil, fmt.Errorf("NotionClient.UpdatePage: page %s: %w", pageID, err)
	}
	return page, nil
}

func (n *NotionClient) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	resp, err := n.api.Database.Query(ctx, notionapi.DatabaseID(databaseID), req)
	if err != nil {
		return nil, fmt.Errorf("NotionClient.QueryDatabase: database %s: %w", databaseID, err)
	}
	return resp, nil
}

// ArchivePage moves a page to the Notion trash. Archived pages drop out of database queries.
func (n *NotionClient) ArchivePage(ctx context.Context, pageID string) error {
	if _, err := n.api.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Archived: true}); err != nil {
		return fmt.Errorf("NotionClient.ArchivePage: page %s: %w", pageID, err)
	}
	return nil
}
