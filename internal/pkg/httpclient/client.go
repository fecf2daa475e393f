// internal/pkg/httpclient/client.go

package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"poscore/internal/pkg/nacos"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Client 是一个可追踪的、可注入的HTTP客户端
// 通过 Nacos 解析服务名，调用方只需要关心逻辑服务名和路径
type Client struct {
	Tracer     trace.Tracer
	HTTPClient *http.Client
	Resolver   *nacos.Client
}

// NewClient 创建一个新的客户端实例
func NewClient(tracer trace.Tracer, resolver *nacos.Client) *Client {
	// 不设置 Timeout 字段，让其完全受控于每次请求传入的 context
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
	}
	return &Client{
		Tracer:     tracer,
		HTTPClient: httpClient,
		Resolver:   resolver,
	}
}

// CallService 通过服务名发起一次 POST 调用，返回响应体
// 服务名到实例的解析走 Nacos，因此调用方不感知部署拓扑
func (c *Client) CallService(ctx context.Context, serviceName, path string, params url.Values) ([]byte, error) {
	ip, port, err := c.Resolver.DiscoverServiceInstance(serviceName)
	if err != nil {
		return nil, err
	}
	serviceURL := fmt.Sprintf("http://%s:%d%s", ip, port, path)
	return c.Post(ctx, serviceURL, params)
}

// CallServiceJSON 通过服务名发起一次 JSON body 的 POST 调用
func (c *Client) CallServiceJSON(ctx context.Context, serviceName, path string, payload interface{}) ([]byte, error) {
	ip, port, err := c.Resolver.DiscoverServiceInstance(serviceName)
	if err != nil {
		return nil, err
	}
	serviceURL := fmt.Sprintf("http://%s:%d%s", ip, port, path)
	return c.PostJSON(ctx, serviceURL, payload)
}

// PostJSON 向一个具体的 URL 发起 JSON body 的 POST 请求
func (c *Client) PostJSON(ctx context.Context, serviceURL string, payload interface{}) ([]byte, error) {
	parsedURL, err := url.Parse(serviceURL)
	if err != nil {
		return nil, err
	}
	spanName := fmt.Sprintf("call-%s", strings.Split(parsedURL.Host, ":")[0])

	ctx, span := c.Tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	data, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", serviceURL, bytes.NewReader(data))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	span.SetAttributes(
		attribute.String("http.url", serviceURL),
		attribute.String("http.method", "POST"),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		err := &StatusError{Code: resp.StatusCode, Body: string(body), URL: serviceURL}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return body, err
	}
	return body, nil
}

// Post 向一个具体的 URL 发起 POST 请求，参数通过 query string 传递
func (c *Client) Post(ctx context.Context, serviceURL string, params url.Values) ([]byte, error) {
	parsedURL, err := url.Parse(serviceURL)
	if err != nil {
		return nil, err
	}
	// 从 URL 中解析出服务名用于 Span
	spanName := fmt.Sprintf("call-%s", strings.Split(parsedURL.Host, ":")[0])

	ctx, span := c.Tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	downstreamURL := *parsedURL
	q := downstreamURL.Query()
	for key, values := range params {
		for _, value := range values {
			q.Add(key, value)
		}
	}
	downstreamURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "POST", downstreamURL.String(), nil)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("http.url", downstreamURL.String()),
		attribute.String("http.method", "POST"),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		err := &StatusError{Code: resp.StatusCode, Body: string(body), URL: serviceURL}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return body, err
	}
	return body, nil
}

// StatusError 表示下游返回了非 200 的响应，保留状态码供调用方判断业务语义
type StatusError struct {
	Code int
	Body string
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("service %s returned status %d: %s", e.URL, e.Code, strings.TrimSpace(e.Body))
}
