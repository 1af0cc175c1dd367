package square

import (
	"context"
	"strings"

	sq "github.com/square/square-go-sdk"
)

// CustomerLookup identifies a diner at Square. ReferenceID carries the DishDash
// user id; Email only matches profiles that predate the reference id.
type CustomerLookup struct {
	ReferenceID string
	Email       string
}

// FindCustomer matches by reference id first and falls back to email.
// It returns nil when neither matches.
func (c *Client) FindCustomer(ctx context.Context, lookup CustomerLookup) (*sq.Customer, error) {
	if c == nil {
		return nil, errAccessTokenRequired
	}
	if ref := strings.TrimSpace(lookup.ReferenceID); ref != "" {
		customer, err := c.searchCustomer(ctx, "reference_id", &sq.CustomerFilter{
			ReferenceID: &sq.CustomerTextFilter{Exact: optional(ref)},
		})
		if err != nil || customer != nil {
			return customer, err
		}
	}
	if email := strings.ToLower(strings.TrimSpace(lookup.Email)); email != "" {
		return c.searchCustomer(ctx, "email", &sq.CustomerFilter{
			EmailAddress: &sq.CustomerTextFilter{Exact: optional(email)},
		})
	}
	return nil, nil
}

func (c *Client) searchCustomer(ctx context.Context, by string, filter *sq.CustomerFilter) (*sq.Customer, error) {
	c.log(ctx, "request", "search_customer", map[string]any{"match_by": by})
	if err := c.throttle(ctx, "search customer"); err != nil {
		return nil, err
	}
	resp, err := c.sdk.Customers.Search(ctx, &sq.SearchCustomersRequest{
		Query: &sq.CustomerQuery{Filter: filter},
		Limit: ptr(int64(1)),
	})
	if err != nil {
		c.log(ctx, "error", "search_customer", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "search customer")
	}
	customers := resp.GetCustomers()
	if len(customers) == 0 {
		c.log(ctx, "response", "search_customer", map[string]any{"match_by": by, "found": false})
		return nil, nil
	}
	c.log(ctx, "response", "search_customer", map[string]any{
		"match_by":    by,
		"customer_id": stringValue(customers[0].GetID()),
	})
	return customers[0], nil
}

// EnsureCustomer returns the profile for params.ReferenceID, creating it on
// first checkout. The create key is derived from the reference id so two
// concurrent checkouts by one diner yield a single profile.
func (c *Client) EnsureCustomer(ctx context.Context, params CustomerCreateParams) (*sq.Customer, error) {
	customer, err := c.FindCustomer(ctx, CustomerLookup{
		ReferenceID: params.ReferenceID,
		Email:       params.Email,
	})
	if err != nil || customer != nil {
		return customer, err
	}
	if params.IdempotencyKey == "" && strings.TrimSpace(params.ReferenceID) != "" {
		params.IdempotencyKey = customerCreateKey(params.ReferenceID)
	}
	return c.CreateCustomer(ctx, params)
}

func customerCreateKey(referenceID string) string {
	key := "cust-" + strings.TrimSpace(referenceID)
	if len(key) > maxIdempotencyKeyLen {
		key = key[:maxIdempotencyKeyLen]
	}
	return key
}
