package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/sentinel-voice/core/internal/apperr"
	"github.com/sentinel-voice/core/internal/summarizer"
)

// ErrCustomerNotFound is returned when neither a Contact nor a Lead
// matches the customer's email.
var ErrCustomerNotFound = errors.New("crm: customer not found")

var activityTemplate = pongo2.Must(pongo2.FromString(
	"SUMMARY:\n{{ summary }}\n\n" +
		"ACTION ITEMS:\n{% for item in action_items %}- {{ item }}\n{% endfor %}\n" +
		"SENTIMENT: {{ sentiment }}\n" +
		"RISK SCORE: {{ risk_score }}/10",
))

type soqlResponse struct {
	TotalSize int `json:"totalSize"`
	Records   []struct {
		ID string `json:"Id"`
	} `json:"records"`
}

// SalesforceAdapter talks to the Salesforce REST API using an
// OAuth2 client-credentials grant.
type SalesforceAdapter struct {
	client      *resty.Client
	apiVersion  string
}

// NewSalesforceAdapter builds an adapter authenticated against
// instanceURL via the OAuth2 client-credentials flow at tokenURL.
func NewSalesforceAdapter(ctx context.Context, instanceURL, tokenURL, clientID, clientSecret, apiVersion string) *SalesforceAdapter {
	if apiVersion == "" {
		apiVersion = "v59.0"
	}
	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	httpClient := cc.Client(ctx)

	client := resty.NewWithClient(httpClient).SetBaseURL(instanceURL)
	return &SalesforceAdapter{client: client, apiVersion: apiVersion}
}

// LogCallActivity implements Adapter: it finds the customer by email
// (Contact first, falling back to Lead), then creates a completed Task
// linked to that record via WhoId.
func (a *SalesforceAdapter) LogCallActivity(ctx context.Context, in ActivityInput) (string, error) {
	whoID, err := a.findCustomer(ctx, in.CustomerEmail)
	if err != nil {
		return "", err
	}

	description, err := renderDescription(in.Summary)
	if err != nil {
		return "", apperr.Permanent("crm.render_description", err)
	}

	payload := map[string]interface{}{
		"Subject":      "Sentinel AI: Call Summary",
		"Status":       "Completed",
		"Priority":     "Normal",
		"Description":  description,
		"WhoId":        whoID,
		"ActivityDate": time.Now().UTC().Format("2006-01-02"),
	}

	var out struct {
		ID string `json:"id"`
	}
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&out).
		Post(fmt.Sprintf("/services/data/%s/sobjects/Task", a.apiVersion))
	if err != nil {
		return "", apperr.Transient("crm.create_task", err)
	}
	if resp.IsError() {
		return "", apperr.Transient("crm.create_task", fmt.Errorf("salesforce: %s", resp.Status()))
	}
	return out.ID, nil
}

func (a *SalesforceAdapter) findCustomer(ctx context.Context, email string) (string, error) {
	if id, ok, err := a.soqlLookup(ctx, "Contact", email); err != nil {
		return "", err
	} else if ok {
		return id, nil
	}
	if id, ok, err := a.soqlLookup(ctx, "Lead", email); err != nil {
		return "", err
	} else if ok {
		return id, nil
	}
	return "", ErrCustomerNotFound
}

func (a *SalesforceAdapter) soqlLookup(ctx context.Context, object, email string) (string, bool, error) {
	query := fmt.Sprintf("SELECT Id FROM %s WHERE Email = '%s' LIMIT 1", object, escapeSOQL(email))

	var out soqlResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetResult(&out).
		Get(fmt.Sprintf("/services/data/%s/query", a.apiVersion))
	if err != nil {
		return "", false, apperr.Transient("crm.soql_query", err)
	}
	if resp.IsError() {
		return "", false, apperr.Transient("crm.soql_query", fmt.Errorf("salesforce: %s", resp.Status()))
	}
	if out.TotalSize == 0 {
		return "", false, nil
	}
	return out.Records[0].ID, true, nil
}

// escapeSOQL guards against the most basic SOQL injection vector
// (quote-breaking) since the email arrives from transcript-derived or
// user-entered data rather than a trusted source.
func escapeSOQL(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}

func renderDescription(s summarizer.Summary) (string, error) {
	return activityTemplate.Execute(pongo2.Context{
		"summary":      s.Summary,
		"action_items": s.ActionItems,
		"sentiment":    s.Sentiment,
		"risk_score":   s.DealRiskScore,
	})
}
