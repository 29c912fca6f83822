// Package api binds each remote AI backend capability to one typed method.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"fashion-advisor-go/pkg/fetcher"
)

// TokenSource supplies the bearer token at call time. An empty token sends no header.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

// Client defines the remote backend capabilities.
type Client interface {
	DetectObjects(ctx context.Context, imageB64 string) (*DetectionResult, error)
	RetrieveImages(ctx context.Context, imageB64 string, items *DetectionResult, k int) (*RetrievalResult, error)
	GenerateAdvisorResponse(ctx context.Context, imageB64 string, retrieval *RetrievalResult, query string) (*AdvisorResponse, error)
	FashionAdvisorVisual(ctx context.Context, imageB64, query string) (*AdvisorResponse, error)
	FashionAdvisorTextOnly(ctx context.Context, query string) (*AdvisorResponse, error)
	OnlineSearchAgent(ctx context.Context, query string) (*OnlineSearchResponse, error)
	TrendGeoStores(ctx context.Context, product any, styleDesc, location string) (*TrendGeoResponse, error)
	VoiceToText(ctx context.Context, filename, contentType string, audio io.Reader) (*VoiceToTextResponse, error)
	Login(ctx context.Context, email, password string) (*LoginResponse, error)
	Signup(ctx context.Context, email, password string) error
	ListProducts(ctx context.Context, page int) ([]Product, error)
	ProductMetadata(ctx context.Context, id string) (*Product, error)
	UploadUserImage(ctx context.Context, userID, filename, contentType string, r io.Reader) (*ImageUpload, error)
}

type backendClient struct {
	http   *fetcher.Client
	tokens TokenSource
}

// NewClient creates a Client on top of the shared transport. tokens may be nil.
func NewClient(f *fetcher.Client, tokens TokenSource) Client {
	return &backendClient{http: f, tokens: tokens}
}

func (c *backendClient) bearer() http.Header {
	if c.tokens == nil {
		return nil
	}
	tok := c.tokens.Token()
	if tok == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+tok)
	return h
}

func (c *backendClient) DetectObjects(ctx context.Context, imageB64 string) (*DetectionResult, error) {
	var out DetectionResult
	err := c.http.Do(ctx, http.MethodPost, "/ai/object-detector", &fetcher.Options{
		JSON: map[string]string{"image_base64": imageB64},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to detect objects: %w", err)
	}
	return &out, nil
}

func (c *backendClient) RetrieveImages(ctx context.Context, imageB64 string, items *DetectionResult, k int) (*RetrievalResult, error) {
	if items == nil {
		items = &DetectionResult{}
	}
	var out RetrievalResult
	err := c.http.Do(ctx, http.MethodPost, "/ai/image-retrieval", &fetcher.Options{
		Query: url.Values{"k": {strconv.Itoa(k)}},
		JSON: map[string]any{
			"image_base64": imageB64,
			"items":        items,
		},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve images: %w", err)
	}
	return &out, nil
}

func (c *backendClient) GenerateAdvisorResponse(ctx context.Context, imageB64 string, retrieval *RetrievalResult, query string) (*AdvisorResponse, error) {
	body := map[string]any{"image": imageB64, "data": retrieval}
	var opts fetcher.Options
	opts.JSON = body
	if query != "" {
		opts.Query = url.Values{"user_query": {query}}
	}
	var out AdvisorResponse
	if err := c.http.Do(ctx, http.MethodPost, "/ai/response-generation-fasion-advisor", &opts, &out); err != nil {
		return nil, fmt.Errorf("failed to generate advisor response: %w", err)
	}
	return &out, nil
}

func (c *backendClient) FashionAdvisorVisual(ctx context.Context, imageB64, query string) (*AdvisorResponse, error) {
	var out AdvisorResponse
	err := c.http.Do(ctx, http.MethodPost, "/ai/fashion-advisor-visual", &fetcher.Options{
		Header: c.bearer(),
		JSON: map[string]string{
			"image_base64": imageB64,
			"user_query":   query,
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *backendClient) FashionAdvisorTextOnly(ctx context.Context, query string) (*AdvisorResponse, error) {
	var out AdvisorResponse
	err := c.http.Do(ctx, http.MethodPost, "/ai/fashion-advisor-text-only", &fetcher.Options{
		Header: c.bearer(),
		Query:  url.Values{"user_query": {query}},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *backendClient) OnlineSearchAgent(ctx context.Context, query string) (*OnlineSearchResponse, error) {
	var out OnlineSearchResponse
	err := c.http.Do(ctx, http.MethodPost, "/ai/online-search-agent", &fetcher.Options{
		JSON: map[string]string{"user_query": query},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *backendClient) TrendGeoStores(ctx context.Context, product any, styleDesc, location string) (*TrendGeoResponse, error) {
	var out TrendGeoResponse
	err := c.http.Do(ctx, http.MethodPost, "/trend-geo/stores", &fetcher.Options{
		JSON: TrendGeoRequest{
			ProductMetadata:      product,
			UserStyleDescription: styleDesc,
			UserLocation:         location,
		},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nearby stores: %w", err)
	}
	return &out, nil
}

func (c *backendClient) VoiceToText(ctx context.Context, filename, contentType string, audio io.Reader) (*VoiceToTextResponse, error) {
	body, ct, err := multipartFile("file", filename, contentType, audio)
	if err != nil {
		return nil, err
	}
	var out VoiceToTextResponse
	if err := c.http.Do(ctx, http.MethodPost, "/voice-to-text", &fetcher.Options{Body: body, Content: ct}, &out); err != nil {
		return nil, fmt.Errorf("failed to transcribe audio: %w", err)
	}
	return &out, nil
}

func (c *backendClient) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var out LoginResponse
	err := c.http.Do(ctx, http.MethodPost, "/login", &fetcher.Options{
		JSON: Credentials{Email: email, Password: password},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *backendClient) Signup(ctx context.Context, email, password string) error {
	return c.http.Do(ctx, http.MethodPost, "/signup", &fetcher.Options{
		JSON: Credentials{Email: email, Password: password},
	}, nil)
}

func (c *backendClient) ListProducts(ctx context.Context, page int) ([]Product, error) {
	if page < 1 {
		page = 1
	}
	var out Envelope[[]Product]
	err := c.http.Do(ctx, http.MethodGet, "/products/all", &fetcher.Options{
		Query: url.Values{"page": {strconv.Itoa(page)}},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return out.Data, nil
}

func (c *backendClient) ProductMetadata(ctx context.Context, id string) (*Product, error) {
	var raw map[string]json.RawMessage
	if err := c.http.Do(ctx, http.MethodGet, "/products/"+url.PathEscape(id)+"/metadata", nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch product %s: %w", id, err)
	}

	// 兼容 {data: product} 与裸 product 两种返回
	var p Product
	if data, ok := raw["data"]; ok {
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode product %s: %w", id, err)
		}
		return &p, nil
	}
	whole, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(whole, &p); err != nil {
		return nil, fmt.Errorf("failed to decode product %s: %w", id, err)
	}
	return &p, nil
}

func (c *backendClient) UploadUserImage(ctx context.Context, userID, filename, contentType string, r io.Reader) (*ImageUpload, error) {
	body, ct, err := multipartFile("file", filename, contentType, r)
	if err != nil {
		return nil, err
	}
	var out Envelope[ImageUpload]
	err = c.http.Do(ctx, http.MethodPost, "/users/"+url.PathEscape(userID)+"/upload-image", &fetcher.Options{
		Header:  c.bearer(),
		Body:    body,
		Content: ct,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}
	return &out.Data, nil
}

// multipartFile builds a single-file form. The part keeps the caller's content
// type because the backend validates it.
func multipartFile(field, filename, contentType string, r io.Reader) (io.Reader, string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, "", fmt.Errorf("failed to write multipart body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
