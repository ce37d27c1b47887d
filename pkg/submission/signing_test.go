package submission

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func stageFolder(t *testing.T, files map[string]string) string {
	folder := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(folder, name), []byte(content), 0o644))
	}
	return folder
}

func TestSigningClientSubmitsMultipartPayload(t *testing.T) {
	var gotPath, gotAPIKey, gotActivityID string
	gotFiles := map[string]string{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("x-api-key")

		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotActivityID = r.FormValue("activityId")

		for _, fh := range r.MultipartForm.File["files"] {
			f, err := fh.Open()
			require.NoError(t, err)
			body, err := io.ReadAll(f)
			f.Close()
			require.NoError(t, err)
			gotFiles[fh.Filename] = string(body)
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	folder := stageFolder(t, map[string]string{
		"100_MP_MP1.html":  "<html>MPP</html>",
		"MATS_MP1_T1_mats": "<mats/>",
	})

	client := NewSigningClient(server.URL, "secret", testLogger(t))
	require.NoError(t, client.Submit(context.Background(), folder, "ACT-42"))

	require.Equal(t, "/sign", gotPath)
	require.Equal(t, "secret", gotAPIKey)
	require.Equal(t, "ACT-42", gotActivityID)
	require.Equal(t, map[string]string{
		"100_MP_MP1.html":  "<html>MPP</html>",
		"MATS_MP1_T1_mats": "<mats/>",
	}, gotFiles)
}

func TestSigningClientSurfacesRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad credentials"))
	}))
	defer server.Close()

	folder := stageFolder(t, map[string]string{"doc.html": "<html/>"})

	client := NewSigningClient(server.URL, "", testLogger(t))
	err := client.Submit(context.Background(), folder, "ACT-42")

	var rejection *ExternalRejectionError
	require.ErrorAs(t, err, &rejection)
	require.Equal(t, http.StatusUnauthorized, rejection.StatusCode)
	require.Contains(t, rejection.Body, "bad credentials")
}
