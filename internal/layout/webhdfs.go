package layout

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WebHDFS reads file listings and block locations from an HDFS namenode over its REST API.
type WebHDFS struct {
	baseURL *url.URL
	user    string
	client  *http.Client
}

// NewWebHDFS creates a client for the namenode at baseURL (e.g. http://namenode:9870).
// A nil client uses a pooled client from go-cleanhttp.
func NewWebHDFS(baseURL, user string, client *http.Client) (*WebHDFS, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parse webhdfs url %q", baseURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("webhdfs url %q must include scheme and host", baseURL)
	}
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
	}
	return &WebHDFS{baseURL: u, user: user, client: client}, nil
}

type fileStatus struct {
	PathSuffix string `json:"pathSuffix"`
	Type       string `json:"type"`
	Length     int64  `json:"length"`
}

type listStatusResponse struct {
	FileStatuses struct {
		FileStatus []fileStatus `json:"FileStatus"`
	} `json:"FileStatuses"`
}

type blockLocation struct {
	Offset        int64    `json:"offset"`
	Length        int64    `json:"length"`
	Names         []string `json:"names"`
	Hosts         []string `json:"hosts"`
	StorageIDs    []string `json:"storageIds"`
	StorageTypes  []string `json:"storageTypes"`
	TopologyPaths []string `json:"topologyPaths"`
}

type blockLocationsResponse struct {
	BlockLocations struct {
		BlockLocation []blockLocation `json:"BlockLocation"`
	} `json:"BlockLocations"`
}

type remoteExceptionResponse struct {
	RemoteException struct {
		Exception string `json:"exception"`
		Message   string `json:"message"`
	} `json:"RemoteException"`
}

// ListLocatedStatus implements FileSystem. path may be a bare path or a full
// hdfs:// URI; reported paths keep the caller's form.
func (w *WebHDFS) ListLocatedStatus(ctx context.Context, p string) ([]LocatedFileStatus, error) {
	fsPath, err := hdfsPath(p)
	if err != nil {
		return nil, err
	}

	var listing listStatusResponse
	if err := w.get(ctx, fsPath, url.Values{"op": {"LISTSTATUS"}}, &listing); err != nil {
		return nil, errors.Wrapf(err, "list %s", p)
	}

	statuses := make([]LocatedFileStatus, 0, len(listing.FileStatuses.FileStatus))
	for _, fst := range listing.FileStatuses.FileStatus {
		st := LocatedFileStatus{
			Path:   strings.TrimSuffix(p, "/") + "/" + fst.PathSuffix,
			Length: fst.Length,
			IsDir:  fst.Type == "DIRECTORY",
		}
		if fst.PathSuffix == "" {
			// LISTSTATUS on a file returns the file itself.
			st.Path = p
		}
		if !st.IsDir && st.Length > 0 {
			st.Blocks, err = w.blockLocations(ctx, path.Join(fsPath, fst.PathSuffix), st.Length)
			if err != nil {
				return statuses, errors.Wrapf(err, "block locations of %s", st.Path)
			}
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func (w *WebHDFS) blockLocations(ctx context.Context, fsPath string, length int64) ([]BlockLocation, error) {
	var resp blockLocationsResponse
	params := url.Values{
		"op":     {"GETFILEBLOCKLOCATIONS"},
		"offset": {"0"},
		"length": {strconv.FormatInt(length, 10)},
	}
	if err := w.get(ctx, fsPath, params, &resp); err != nil {
		return nil, err
	}

	blocks := make([]BlockLocation, 0, len(resp.BlockLocations.BlockLocation))
	for _, b := range resp.BlockLocations.BlockLocation {
		blocks = append(blocks, BlockLocation(b))
	}
	return blocks, nil
}

func (w *WebHDFS) get(ctx context.Context, fsPath string, params url.Values, out any) error {
	u := *w.baseURL
	u.Path = path.Join(w.baseURL.Path, "/webhdfs/v1", fsPath)
	if w.user != "" {
		params.Set("user.name", w.user)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "build webhdfs request")
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", params.Get("op"), fsPath)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var remote remoteExceptionResponse
		if err := json.NewDecoder(resp.Body).Decode(&remote); err == nil && remote.RemoteException.Exception != "" {
			return errors.Errorf("%s %s: %s: %s", params.Get("op"), fsPath, remote.RemoteException.Exception, remote.RemoteException.Message)
		}
		return errors.Errorf("%s %s: unexpected status %s", params.Get("op"), fsPath, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s response", params.Get("op"))
	}
	return nil
}

// hdfsPath strips the scheme and authority from an hdfs:// or webhdfs:// URI.
func hdfsPath(p string) (string, error) {
	if !strings.Contains(p, "://") {
		return path.Clean("/" + p), nil
	}
	u, err := url.Parse(p)
	if err != nil {
		return "", errors.Wrapf(err, "parse path %q", p)
	}
	return path.Clean("/" + u.Path), nil
}
