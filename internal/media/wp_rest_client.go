package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"wp-user-migration/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WPRESTClient implementa Importer contra la API REST de medios de WordPress.
type WPRESTClient struct {
	baseURL     string
	username    string
	appPassword string
	client      *http.Client
	logger      *zap.Logger
}

// NewWPRESTClient construye el cliente; baseURL es la raiz del sitio (sin /wp-json).
func NewWPRESTClient(baseURL, username, appPassword string, logger *zap.Logger) *WPRESTClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WPRESTClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		username:    username,
		appPassword: appPassword,
		client:      &http.Client{Timeout: 60 * time.Second},
		logger:      logger,
	}
}

func (c *WPRESTClient) CreateFromURL(ctx context.Context, url, mimeType string, props Properties) (int64, error) {
	data, err := c.download(ctx, url)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/wp-json/wp/v2/media", bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("create upload request: %w", err)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName(url, props.LegacyImageID)))

	var created mediaResponse
	if err := c.doJSON(req, &created); err != nil {
		return 0, fmt.Errorf("upload media: %w", err)
	}
	if created.ID == 0 {
		return 0, fmt.Errorf("upload media: empty id in response")
	}

	body, err := json.Marshal(mediaUpdate{
		Author: props.AuthorID,
		Meta:   map[string]string{domain.MetaLegacyUserImageID: strconv.FormatInt(props.LegacyImageID, 10)},
	})
	if err != nil {
		return 0, fmt.Errorf("marshal media update: %w", err)
	}
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/wp-json/wp/v2/media/"+strconv.FormatInt(created.ID, 10), bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.doJSON(req, nil); err != nil {
		return 0, fmt.Errorf("update media %d: %w", created.ID, err)
	}

	return created.ID, nil
}

func (c *WPRESTClient) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("download %s: status=%d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read download: %w", err)
	}
	return data, nil
}

func (c *WPRESTClient) doJSON(req *http.Request, out any) error {
	req.SetBasicAuth(c.username, c.appPassword)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		c.logger.Warn("wordpress media error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)),
		)
		return fmt.Errorf("wordpress http error: status=%d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func fileName(rawURL string, imageID int64) string {
	name := path.Base(strings.SplitN(rawURL, "?", 2)[0])
	if name == "" || name == "." || name == "/" {
		return "legacy-userimage-" + strconv.FormatInt(imageID, 10)
	}
	return name
}

type mediaResponse struct {
	ID int64 `json:"id"`
}

type mediaUpdate struct {
	Author int64             `json:"author"`
	Meta   map[string]string `json:"meta"`
}
