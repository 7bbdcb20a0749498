package calls

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestOutbox(t *testing.T) {
	o := newOutbox()

	require.NoError(t, o.push(op{kind: opSend, payload: []byte("a")}))
	require.NoError(t, o.push(op{kind: opHalfClose}))
	require.NoError(t, o.push(op{kind: opHalfClose}))
	assert.ErrorIs(t, o.push(op{kind: opSend}), ErrCallClosed)

	ops := o.take()
	require.Len(t, ops, 2)
	assert.Equal(t, opSend, ops[0].kind)
	assert.Equal(t, opHalfClose, ops[1].kind)
	assert.Empty(t, o.take())

	o.close()
	assert.ErrorIs(t, newClosedOutbox().push(op{kind: opSend}), ErrCallClosed)
}

func newClosedOutbox() *outbox {
	o := newOutbox()
	o.close()
	return o
}

func TestCredits(t *testing.T) {
	c := newCredits()
	ctx := context.Background()

	c.grant(2)
	assert.True(t, c.take(ctx))
	assert.True(t, c.take(ctx))
	assert.Equal(t, 0, c.available())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.True(t, c.take(ctx))
	}()
	time.Sleep(10 * time.Millisecond)
	c.grant(1)
	wg.Wait()

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, c.take(cancelled))
}

func TestShape(t *testing.T) {
	tests := []struct {
		shape          Shape
		name           string
		serverStreams  bool
		clientStreams  bool
		renewsCredit   bool
		singleResponse bool
	}{
		{Unary, "unary", false, false, false, true},
		{ServerStreaming, "server_streaming", true, false, true, false},
		{ClientStreaming, "client_streaming", false, true, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.shape.String())
			desc := tt.shape.desc()
			assert.Equal(t, tt.serverStreams, desc.ServerStreams)
			assert.Equal(t, tt.clientStreams, desc.ClientStreams)
			assert.Equal(t, tt.renewsCredit, tt.shape.renewsCredit())
			assert.Equal(t, tt.singleResponse, tt.shape.singleResponse())
		})
	}
	assert.Equal(t, "unknown", Shape(9).String())
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "/pkg.Svc/Method", want: "/pkg.Svc/Method"},
		{in: "pkg.Svc/Method", want: "/pkg.Svc/Method"},
		{in: "//pkg.Svc/Method", wantErr: true},
		{in: "pkg.Svc", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := normalizePath(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidPath, tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "UNAVAILABLE: connection refused", ErrorMessage(status.New(codes.Unavailable, "connection refused")))
	assert.Equal(t, "CANCELLED", ErrorMessage(status.New(codes.Canceled, "")))
	assert.Equal(t, "CODE(99)", CodeName(codes.Code(99)))
}

func TestRawCodec(t *testing.T) {
	c := rawCodec{}
	assert.Equal(t, "proto", c.Name())

	data, err := c.Marshal([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)

	b := []byte("xyz")
	data, err = c.Marshal(&b)
	require.NoError(t, err)
	assert.Equal(t, b, data)

	_, err = c.Marshal("string")
	assert.Error(t, err)

	var out []byte
	require.NoError(t, c.Unmarshal([]byte("def"), &out))
	assert.Equal(t, []byte("def"), out)
	assert.Error(t, c.Unmarshal([]byte("def"), out))
}
