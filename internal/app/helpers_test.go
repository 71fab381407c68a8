package app

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"sekisetsu/internal/physics"
)

func physicsPoint(x, y float64) physics.Vec {
	return physics.Vec{X: x, Y: y}
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}
