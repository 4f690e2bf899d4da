package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/c360/nodeflow/errors"
	"github.com/c360/nodeflow/health"
	"github.com/c360/nodeflow/node"
	"github.com/c360/nodeflow/testutil"
)

type PipelineSuite struct {
	suite.Suite
	logger *slog.Logger
	p      *Pipeline
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.p = New("test", WithLogger(s.logger))
}

func (s *PipelineSuite) TearDownTest() {
	s.Require().NoError(s.p.Dispose(context.Background()))
}

func (s *PipelineSuite) opts(name string) []node.Option {
	return []node.Option{node.WithName(name), node.WithLogger(s.logger)}
}

func (s *PipelineSuite) TestAddValidation() {
	s.True(errors.IsInvalid(s.p.Add(nil)))
	s.True(errors.IsInvalid(s.p.Add(testutil.NewMockNode(""))))

	s.Require().NoError(s.p.Add(testutil.NewMockNode("a")))
	err := s.p.Add(testutil.NewMockNode("a"))
	s.True(errors.IsInvalid(err))
	s.ErrorContains(err, `duplicate node "a"`)

	got, ok := s.p.Get("a")
	s.True(ok)
	s.Equal("a", got.Name())
	s.Equal([]string{"a"}, s.p.Names())
}

func (s *PipelineSuite) TestConnectValidation() {
	src := node.NewBroadcaster(s.opts("src")...)
	mock := testutil.NewMockNode("sink")
	s.p.MustAdd(src, mock)

	s.True(errors.IsInvalid(s.p.Connect("src", "missing")))
	s.True(errors.IsInvalid(s.p.Connect("missing", "sink")))
	// MockNode has no Subscribe.
	s.True(errors.IsInvalid(s.p.Connect("sink", "src")))

	s.Require().NoError(s.p.Connect("src", "sink"))
	s.Require().NoError(s.p.Connect("src", "sink"))
	s.Equal([]Edge{{From: "src", To: "sink"}}, s.p.Edges())
	s.Len(src.Subscribers(), 1)

	s.Require().NoError(s.p.Disconnect("src", "sink"))
	s.Empty(s.p.Edges())
	s.Empty(src.Subscribers())
	s.Require().NoError(s.p.Disconnect("src", "sink"))
}

func (s *PipelineSuite) TestWavesFollowEdges() {
	src := node.NewBroadcaster(s.opts("src")...)
	mid, err := node.NewProcessor(func(_ node.Producer, p node.Payload) (node.Payload, error) { return p, nil },
		s.opts("mid")...)
	s.Require().NoError(err)
	sink := testutil.NewMockNode("sink")
	s.p.MustAdd(sink, mid, src)
	s.Require().NoError(s.p.Connect("src", "mid"))
	s.Require().NoError(s.p.Connect("mid", "sink"))

	s.Equal([][]string{{"src"}, {"mid"}, {"sink"}}, s.p.waves())

	s.Require().NoError(s.p.Start())
	s.True(mid.IsRunning())
	s.True(sink.IsRunning())
	s.Equal(1, sink.StartCalls)

	s.p.Stop()
	s.False(mid.IsRunning())
	s.False(sink.IsRunning())
}

func (s *PipelineSuite) TestWavesPlaceCyclesLast() {
	a, err := node.NewProcessor(func(_ node.Producer, p node.Payload) (node.Payload, error) { return nil, nil },
		s.opts("a")...)
	s.Require().NoError(err)
	b, err := node.NewProcessor(func(_ node.Producer, p node.Payload) (node.Payload, error) { return nil, nil },
		s.opts("b")...)
	s.Require().NoError(err)
	lone := testutil.NewMockNode("lone")
	s.p.MustAdd(a, b, lone)
	s.Require().NoError(s.p.Connect("a", "b"))
	s.Require().NoError(s.p.Connect("b", "a"))

	s.Equal([][]string{{"lone"}, {"a", "b"}}, s.p.waves())
}

func (s *PipelineSuite) TestDisposeDrainsEndToEnd() {
	items := []string{"a", "b", "c"}
	var next atomic.Int64
	source, err := node.NewPoller(func() (node.Payload, error) {
		i := int(next.Add(1)) - 1
		if i >= len(items) {
			return nil, nil
		}
		return items[i], nil
	}, append(s.opts("source"), node.WithPollInterval(time.Millisecond))...)
	s.Require().NoError(err)

	suffix, err := node.NewProcessor(func(_ node.Producer, p node.Payload) (node.Payload, error) {
		return p.(string) + "X", nil
	}, s.opts("suffix")...)
	s.Require().NoError(err)

	sink := testutil.NewRecorder(s.opts("sink")...)

	s.p.MustAdd(source, suffix, sink)
	s.Require().NoError(s.p.Connect("source", "suffix"))
	s.Require().NoError(s.p.Connect("suffix", "sink"))
	s.Require().NoError(s.p.Start())

	s.Eventually(func() bool { return next.Load() > int64(len(items)) }, 2*time.Second, time.Millisecond)
	s.Require().NoError(s.p.Dispose(context.Background()))

	s.Equal([]string{"aX", "bX", "cX"}, sink.Strings())
	s.False(sink.IsRunning())
	s.True(errors.IsFatal(s.p.Start()))
	s.True(errors.IsFatal(s.p.Add(testutil.NewMockNode("late"))))
}

func (s *PipelineSuite) TestDisposeHonoursContext() {
	release := make(chan struct{})
	slow, err := node.NewConsumer(func(node.Producer, node.Payload) error {
		<-release
		return nil
	}, s.opts("slow")...)
	s.Require().NoError(err)
	s.p.MustAdd(slow)
	s.Require().NoError(s.p.Start())
	s.Require().NoError(slow.ReceiveData(nil, "x"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = s.p.Dispose(ctx)
	s.Require().Error(err)
	s.True(errors.IsTransient(err))

	close(release)
	s.Eventually(func() bool { return slow.Stats().Handled == 1 }, time.Second, time.Millisecond)
}

func (s *PipelineSuite) TestTopology() {
	src := node.NewBroadcaster(s.opts("src")...)
	sink := testutil.NewMockNode("sink")
	lone := testutil.NewMockNode("lone")
	s.p.MustAdd(src, sink, lone)
	s.Require().NoError(s.p.Connect("src", "sink"))

	topo := s.p.Topology()
	s.Equal("warnings", topo.Status)
	s.Equal([]string{"lone"}, topo.Isolated)
	s.Equal([][]string{{"sink", "src"}, {"lone"}}, topo.Clusters)
	s.Require().Len(topo.Nodes, 3)
	s.True(topo.Nodes[0].Producer)
	s.False(topo.Nodes[0].Consumer)
	s.Equal([]string{"sink"}, topo.Nodes[0].Downstream)
	s.Equal([]string{"src"}, topo.Nodes[1].Upstream)

	s.Require().NoError(s.p.Disconnect("src", "sink"))
	s.Len(s.p.Topology().Isolated, 3)
}

func (s *PipelineSuite) TestHealth() {
	p := New("health", WithLogger(s.logger), WithThresholds(health.Thresholds{MaxDepth: 1}))
	defer func() { s.Require().NoError(p.Dispose(context.Background())) }()

	sink := testutil.NewRecorder(s.opts("sink")...)
	mock := testutil.NewMockNode("mock")
	p.MustAdd(sink, mock)

	s.True(p.Health().IsUnhealthy())

	s.Require().NoError(p.Start())
	status := p.Health()
	s.True(status.IsHealthy(), status.Message)
	s.Len(status.SubStatuses, 2)

	p.Monitor().RecordError("nats", errors.ErrConnectionLost)
	s.True(p.Health().IsUnhealthy())
}

func (s *PipelineSuite) TestStatsInRegistrationOrder() {
	a := testutil.NewRecorder(s.opts("a")...)
	b := testutil.NewRecorder(s.opts("b")...)
	s.p.MustAdd(b, testutil.NewMockNode("m"), a)

	stats := s.p.Stats()
	s.Require().Len(stats, 2)
	s.Equal("b", stats[0].Name)
	s.Equal("a", stats[1].Name)
}
