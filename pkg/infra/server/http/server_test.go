package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/kart-io/docvector/pkg/errors"
	"github.com/kart-io/docvector/pkg/infra/middleware"
	options "github.com/kart-io/docvector/pkg/options/http"
	"github.com/kart-io/docvector/pkg/utils/json"
	"github.com/kart-io/docvector/pkg/utils/response"
)

func TestServerStartServeStop(t *testing.T) {
	opts := options.NewOptions()
	opts.Addr = "127.0.0.1:0"
	opts.Mode = gin.TestMode

	s := NewServer(opts)
	s.Engine().GET("/ping", func(c *gin.Context) { response.OK(c, "pong") })

	require.NoError(t, s.Start(context.Background()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, s.Stop(ctx))
	}()

	base := fmt.Sprintf("http://%s", s.Addr())

	resp, err := http.Get(base + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(middleware.HeaderXRequestID))

	var r response.Response
	require.NoError(t, json.Unmarshal(body, &r))
	assert.Equal(t, "pong", r.Data)

	resp, err = http.Get(base + "/nope")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &r))
	assert.Equal(t, apierrors.ErrRouteNotFound.Code, r.Code)
}

func TestServerStartAddressInUse(t *testing.T) {
	opts := options.NewOptions()
	opts.Addr = "127.0.0.1:0"
	opts.Mode = gin.TestMode

	first := NewServer(opts)
	require.NoError(t, first.Start(context.Background()))
	defer func() { _ = first.Stop(context.Background()) }()

	busy := options.NewOptions()
	busy.Addr = first.Addr()
	busy.Mode = gin.TestMode
	assert.Error(t, NewServer(busy).Start(context.Background()))
}

func TestServerStopBeforeStart(t *testing.T) {
	assert.NoError(t, NewServer(nil).Stop(context.Background()))
}
