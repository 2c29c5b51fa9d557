package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aliyun/alibaba-cloud-sdk-go/sdk"
	"github.com/aliyun/alibaba-cloud-sdk-go/sdk/requests"
	"github.com/aliyun/alibaba-cloud-sdk-go/sdk/responses"

	"github.com/vaibhaw-/oplogr/internal/oplogr/config"
	"github.com/vaibhaw-/oplogr/internal/oplogr/oplog"
)

// PageSize is the number of audit records requested per page.
const PageSize = 1000

// APIError represents a response the API did not mark as successful.
type APIError struct {
	StatusCode int
	Body       string // first 512 bytes
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// requester is the part of the SDK client used here.
type requester interface {
	ProcessCommonRequest(request *requests.CommonRequest) (*responses.CommonResponse, error)
}

// AuditRecords pages through DescribeAuditRecords.
type AuditRecords struct {
	client   requester
	endpoint string
	version  string
	action   string
	filters  map[string]string
}

// New creates an AuditRecords source signed with the configured AccessKey.
func New(cfg config.AliyunCfg, filters map[string]string) (*AuditRecords, error) {
	if cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" {
		return nil, fmt.Errorf("aliyun access key id and secret are required")
	}
	client, err := sdk.NewClientWithAccessKey(cfg.RegionID, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("create aliyun client: %w", err)
	}
	return newAuditRecords(client, cfg, filters), nil
}

func newAuditRecords(client requester, cfg config.AliyunCfg, filters map[string]string) *AuditRecords {
	return &AuditRecords{
		client:   client,
		endpoint: cfg.Endpoint,
		version:  cfg.APIVersion,
		action:   cfg.Action,
		filters:  filters,
	}
}

// FetchPage returns the records of one page. An empty slice means the
// listing is exhausted.
func (a *AuditRecords) FetchPage(ctx context.Context, page int) ([]oplog.RawAuditRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := a.client.ProcessCommonRequest(a.buildRequest(page))
	if err != nil {
		return nil, fmt.Errorf("%s page %d: %w", a.action, page, err)
	}
	if !resp.IsSuccess() {
		body := resp.GetHttpContentString()
		if len(body) > 512 {
			body = body[:512]
		}
		return nil, &APIError{StatusCode: resp.GetHttpStatus(), Body: body}
	}
	records, err := decodePage(resp.GetHttpContentBytes())
	if err != nil {
		return nil, fmt.Errorf("%s page %d: %w", a.action, page, err)
	}
	return records, nil
}

// buildRequest merges the base filters with the paging parameters; paging
// always wins over a filter of the same name.
func (a *AuditRecords) buildRequest(page int) *requests.CommonRequest {
	req := requests.NewCommonRequest()
	req.Method = requests.POST
	req.Scheme = requests.HTTPS
	req.Domain = a.endpoint
	req.Version = a.version
	req.ApiName = a.action
	for k, v := range a.filters {
		req.QueryParams[k] = v
	}
	req.QueryParams["PageSize"] = strconv.Itoa(PageSize)
	req.QueryParams["PageNumber"] = strconv.Itoa(page)
	return req
}

type describeAuditRecordsResponse struct {
	Items struct {
		SQLRecord []oplog.RawAuditRecord `json:"SQLRecord"`
	} `json:"Items"`
}

func decodePage(body []byte) ([]oplog.RawAuditRecord, error) {
	var r describeAuditRecordsResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return r.Items.SQLRecord, nil
}
