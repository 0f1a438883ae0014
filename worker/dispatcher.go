package worker

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/realDragonium/Slumber/core"
	"github.com/realDragonium/Slumber/mc"
	log "github.com/sirupsen/logrus"
)

var occupations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "slumber",
	Name:      "join_methods_total",
	Help:      "The number of times a join method handled a connection, by outcome.",
}, []string{"method", "outcome"})

// Dispatcher keeps logins busy while the server is not running, trying the
// join methods of the plan in order until one of them takes the connection.
type Dispatcher struct {
	server core.Server
	plan   core.OccupationPlan
	// upstream is the real server
	upstream Target
	forge    bool
}

func NewDispatcher(server core.Server, plan core.OccupationPlan, upstream Target, forge bool) *Dispatcher {
	return &Dispatcher{
		server:   server,
		plan:     plan,
		upstream: upstream,
		forge:    forge,
	}
}

// Occupy owns conn from here on, it is closed or handed off to a server
// before Occupy returns. woke tells whether this login requested a start.
func (d *Dispatcher) Occupy(conn net.Conn, reader *bufio.Reader, req core.RequestData, woke bool) error {
	watch := watchClient(conn, reader)
	defer watch.stop()

	var failure error
	for i, method := range d.plan {
		req.Method = i
		var consumed bool
		var err error
		switch method.Kind {
		case core.Hold:
			consumed, err = d.hold(watch, conn, reader, req, method, woke)
		case core.Kick:
			consumed, err = true, d.kick(conn, method)
		case core.Forward:
			watch.stop()
			target := Target{Address: method.Address, SendProxyV2: method.SendProxyV2, DialTimeout: d.upstream.DialTimeout}
			consumed, err = true, Forward(conn, reader, req, target)
		case core.Lobby:
			consumed, err = d.lobby(watch, conn, reader, req, method)
		}

		outcome := "passed"
		if consumed {
			outcome = "consumed"
		}
		occupations.WithLabelValues(method.Kind.String(), outcome).Inc()
		if consumed {
			return err
		}
		if err != nil {
			failure = err
			log.Debugf("%v for %s fell through: %v", method.Kind, req.Username, err)
		}
		if watch.ctx.Err() != nil {
			conn.Close()
			return core.ErrClientClosedConn
		}
	}

	conn.Close()
	if failure != nil {
		return failure
	}
	return core.ErrNoMethodApplied
}

// hold keeps the client waiting without answering until the server runs.
// It passes the connection on when the server did not come up in time.
func (d *Dispatcher) hold(watch *clientWatch, conn net.Conn, reader *bufio.Reader, req core.RequestData, method core.JoinMethod, woke bool) (bool, error) {
	if d.server.State() == core.Stopping && !woke {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(watch.ctx, method.Timeout)
	defer cancel()

	for {
		state, err := d.server.WaitFor(ctx, core.Running, core.Sleeping)
		if err != nil {
			if watch.ctx.Err() != nil {
				conn.Close()
				return true, core.ErrClientClosedConn
			}
			return false, nil
		}
		if state == core.Running {
			watch.stop()
			return true, d.forwardToServer(conn, reader, req)
		}
		if failure := d.server.Failure(); failure != nil {
			return false, failure
		}
		// stopped in the meantime, the player still wants in
		if !d.server.Wake() && d.server.State() == core.Sleeping {
			return false, core.ErrNotRunning
		}
	}
}

func (d *Dispatcher) kick(conn net.Conn, method core.JoinMethod) error {
	defer conn.Close()
	return mc.NewMcConn(conn).WritePacket(mc.NewDisconnect(kickMessage(d.server.State(), method)))
}

func kickMessage(state core.ServerState, method core.JoinMethod) string {
	if state == core.Stopping {
		return method.StoppingMessage
	}
	return method.StartingMessage
}

func (d *Dispatcher) forwardToServer(conn net.Conn, reader *bufio.Reader, req core.RequestData) error {
	d.server.ConnOpened()
	defer d.server.ConnClosed()
	return Forward(conn, reader, req, d.upstream)
}

// clientWatch notices a client closing its connection while nobody reads
// from it, without consuming anything.
type clientWatch struct {
	ctx    context.Context
	cancel context.CancelFunc
	conn   net.Conn
	done   chan struct{}
	once   sync.Once
}

func watchClient(conn net.Conn, reader *bufio.Reader) *clientWatch {
	ctx, cancel := context.WithCancel(context.Background())
	watch := &clientWatch{
		ctx:    ctx,
		cancel: cancel,
		conn:   conn,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(watch.done)
		_, err := reader.Peek(1)
		if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
			cancel()
		}
	}()
	return watch
}

// stop ends the watch, afterwards the reader may be used again.
func (watch *clientWatch) stop() {
	watch.once.Do(func() {
		watch.conn.SetReadDeadline(time.Now())
		<-watch.done
		watch.conn.SetReadDeadline(time.Time{})
		watch.cancel()
	})
}
