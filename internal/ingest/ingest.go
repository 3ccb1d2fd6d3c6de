// Package ingest moves scans over ZeroMQ as CBOR messages.
package ingest

import (
	"context"
	"sync"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sonar-sim-go/internal/logging"
	"sonar-sim-go/internal/types"
)

// Publisher pushes every scan it is given to downstream consumers. A full
// send queue drops the scan rather than blocking the render loop.
type Publisher struct {
	mu      sync.Mutex
	socket  *zmq4.Socket
	logger  *zap.SugaredLogger
	dropLog logging.EveryN
	sent    uint64
	dropped uint64
}

func NewPublisher(endpoint string, logger *zap.SugaredLogger, logEvery int) (*Publisher, error) {
	socket, err := zmq4.NewSocket(zmq4.PUSH)
	if err != nil {
		return nil, errors.Wrap(err, "create PUSH socket")
	}
	if err := socket.SetSndhwm(16); err != nil {
		_ = socket.Close()
		return nil, err
	}
	if err := socket.SetLinger(0); err != nil {
		_ = socket.Close()
		return nil, err
	}
	if err := socket.Bind(endpoint); err != nil {
		_ = socket.Close()
		return nil, errors.Wrapf(err, "bind %s", endpoint)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Publisher{
		socket:  socket,
		logger:  logger,
		dropLog: logging.EveryN{N: logEvery},
	}, nil
}

func (p *Publisher) PublishGeometry(geom types.ScanGeometry) error {
	payload, err := EncodeGeometry(geom)
	if err != nil {
		return err
	}
	return p.PublishRaw(payload)
}

// PublishRaw sends an already encoded message.
func (p *Publisher) PublishRaw(payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.socket == nil {
		return errors.New("publisher is closed")
	}
	if _, err := p.socket.SendBytes(payload, zmq4.DONTWAIT); err != nil {
		if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
			p.dropped++
			p.dropLog.Warnw(p.logger, "publish queue full, dropping message", "dropped", p.dropped)
			return nil
		}
		return errors.Wrap(err, "publish")
	}
	p.sent++
	return nil
}

// Counters returns the number of sent and dropped messages.
func (p *Publisher) Counters() (uint64, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent, p.dropped
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.socket == nil {
		return nil
	}
	err := p.socket.Close()
	p.socket = nil
	return err
}

// Stream connects to a publisher and returns its decoded messages. The
// channel is closed when ctx is done.
func Stream(ctx context.Context, endpoint string, logger *zap.SugaredLogger, logEvery int) (<-chan Message, error) {
	socket, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return nil, err
	}
	if err := socket.SetRcvtimeo(250 * time.Millisecond); err != nil {
		_ = socket.Close()
		return nil, err
	}
	if err := socket.Connect(endpoint); err != nil {
		_ = socket.Close()
		return nil, errors.Wrapf(err, "connect %s", endpoint)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	out := make(chan Message, 128)
	go func() {
		defer close(out)
		defer socket.Close()

		recvLog := logging.EveryN{N: logEvery}
		decodeLog := logging.EveryN{N: logEvery}
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msg, err := socket.RecvBytes(0)
			if err != nil {
				if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
					continue
				}
				recvLog.Warnw(logger, "stream recv error", "error", err)
				continue
			}

			decoded, err := DecodeMessage(msg)
			if err != nil {
				decodeLog.Warnw(logger, "stream decode skipped message", "error", err)
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- decoded:
			}
		}
	}()

	return out, nil
}
