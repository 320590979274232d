// Package mailchimp is a small MailChimp Marketing API v3 client covering key
// validation and interest lookups.
package mailchimp

import "fmt"

// Root is the reply of the API root endpoint.
type Root struct {
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name"`
	LoginID     string `json:"login_id"`
}

// InterestCategory is a group title on a list, e.g. "Preferred sessions".
type InterestCategory struct {
	ListID       string `json:"list_id"`
	ID           string `json:"id"`
	Title        string `json:"title"`
	DisplayOrder int    `json:"display_order"`
	Type         string `json:"type"`
}

// Interest is one selectable option inside a category.
type Interest struct {
	ID              string `json:"id"`
	CategoryID      string `json:"category_id"`
	ListID          string `json:"list_id"`
	Name            string `json:"name"`
	SubscriberCount string `json:"subscriber_count,omitempty"`
	DisplayOrder    int    `json:"display_order"`
}

type categoriesPage struct {
	Categories []InterestCategory `json:"categories"`
	TotalItems int                `json:"total_items"`
}

type interestsPage struct {
	Interests  []Interest `json:"interests"`
	TotalItems int        `json:"total_items"`
}

// ProblemDetail is the error document returned with non-2xx replies.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance"`
}

func (p ProblemDetail) Error() string {
	if p.Detail != "" {
		return fmt.Sprintf("%s (%d): %s", p.Title, p.Status, p.Detail)
	}
	return fmt.Sprintf("%s (%d)", p.Title, p.Status)
}
