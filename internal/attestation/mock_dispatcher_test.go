package attestation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/shieldedusdc/relayer/internal/dispatcher"
	"github.com/shieldedusdc/relayer/internal/metrics"
	"github.com/shieldedusdc/relayer/internal/store"
)

// MockDispatcher is a hand-written stand-in for the output mockgen would
// produce for the Dispatcher interface, used to exercise a
// gomock-style expectation in a scenario the hand-written fakeDispatcher
// doesn't cover: call-count and argument assertions via EXPECT().
type MockDispatcher struct {
	ctrl     *gomock.Controller
	recorder *MockDispatcherRecorder
}

type MockDispatcherRecorder struct {
	mock *MockDispatcher
}

func NewMockDispatcher(ctrl *gomock.Controller) *MockDispatcher {
	m := &MockDispatcher{ctrl: ctrl}
	m.recorder = &MockDispatcherRecorder{mock: m}
	return m
}

func (m *MockDispatcher) EXPECT() *MockDispatcherRecorder {
	return m.recorder
}

func (m *MockDispatcher) Dispatch(ctx context.Context, t store.PendingTransfer, messageBytes, attestationBytes []byte) (dispatcher.Result, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Dispatch", ctx, t, messageBytes, attestationBytes)
	ret0, _ := ret[0].(dispatcher.Result)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockDispatcherRecorder) Dispatch(ctx, t, messageBytes, attestationBytes interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Dispatch",
		reflect.TypeOf((*MockDispatcher)(nil).Dispatch), ctx, t, messageBytes, attestationBytes)
}

func TestPollOneCallsDispatcherExactlyOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"complete","attestation":"0xdead"}`))
	}))
	defer srv.Close()
	s := store.New()

	ctrl := gomock.NewController(t)
	mockDispatcher := NewMockDispatcher(ctrl)
	mockDispatcher.EXPECT().
		Dispatch(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Times(1).
		Return(dispatcher.Result{Outcome: dispatcher.OutcomeDelivered}, nil)

	client := NewClient(srv.URL)
	m := metrics.New(prometheus.NewRegistry())
	p := New(client, s, mockDispatcher, 0, 10, m, zap.NewNop())

	transfer := newPendingTransfer(1, 0)
	s.Insert(transfer)

	p.pollOne(context.Background(), transfer)

	require.Equal(t, 0, s.Len())
}
