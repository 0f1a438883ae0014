package worker

import (
	"bufio"
	"errors"
	"net"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/realDragonium/Slumber/config"
	"github.com/realDragonium/Slumber/core"
	"github.com/realDragonium/Slumber/mc"
	"github.com/realDragonium/Slumber/module"
	log "github.com/sirupsen/logrus"
)

var (
	requestBuckets  = []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5}
	processRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "slumber",
		Name:      "request_duration_seconds",
		Help:      "Histogram request processing durations.",
		Buckets:   requestBuckets,
	}, []string{"action", "type"})
)

// Services are the collaborators a worker hands connections to.
type Services struct {
	Server core.Server
	// Access is asked for every connection before anything is answered.
	Access module.ConnectionLimiter
	// WakeGate is asked for logins which would wake the server.
	WakeGate module.ConnectionLimiter
	// Refuser drops connections before their handshake is read.
	Refuser    module.AddrFilter
	Dispatcher *Dispatcher
}

// Answer is what a worker decided to do with a connection.
type Answer struct {
	action    core.ServerAction
	rejection *module.Rejection
	woke      bool
}

func (ans Answer) Action() core.ServerAction {
	return ans.action
}

// Woke reports whether this connection asked the server to start.
func (ans Answer) Woke() bool {
	return ans.woke
}

func NewWorker(cfg config.WorkerConfig, reqCh <-chan net.Conn, services Services) BasicWorker {
	access := services.Access
	if access == nil {
		access = module.AlwaysAllowConnection{}
	}
	wakeGate := services.WakeGate
	if wakeGate == nil || !cfg.WakeWhitelist {
		wakeGate = module.AlwaysAllowConnection{}
	}
	refuser := services.Refuser
	if !cfg.BlockBannedIPs {
		refuser = nil
	}
	upstream := Target{
		Address:     cfg.ProxyTo,
		SendProxyV2: cfg.SendProxyV2,
		DialTimeout: cfg.DialTimeout,
	}
	dispatcher := services.Dispatcher
	if dispatcher == nil {
		dispatcher = NewDispatcher(services.Server, cfg.Plan, upstream, cfg.Forge)
	}
	return BasicWorker{
		reqCh:      reqCh,
		closeCh:    make(chan struct{}),
		cfg:        cfg,
		ioTimeout:  cfg.IOTimeout,
		server:     services.Server,
		access:     access,
		wakeGate:   wakeGate,
		refuser:    refuser,
		dispatcher: dispatcher,
		upstream:   upstream,
	}
}

type BasicWorker struct {
	reqCh   <-chan net.Conn
	closeCh chan struct{}

	cfg        config.WorkerConfig
	ioTimeout  time.Duration
	server     core.Server
	access     module.ConnectionLimiter
	wakeGate   module.ConnectionLimiter
	refuser    module.AddrFilter
	dispatcher *Dispatcher
	upstream   Target
}

func (bw *BasicWorker) IODeadline() time.Time {
	return time.Now().Add(bw.ioTimeout)
}

func (bw *BasicWorker) CloseCh() chan<- struct{} {
	return bw.closeCh
}

func (bw *BasicWorker) Work() {
	for {
		select {
		case conn := <-bw.reqCh:
			start := time.Now()
			req, ans, err := bw.ProcessConnection(conn)
			if err != nil {
				conn.Close()
				switch {
				case errors.Is(err, core.ErrBanned):
					log.Debugf("dropped banned ip %v", conn.RemoteAddr())
				case errors.Is(err, core.ErrClientToSlow):
					log.Debugf("client %v was to slow with sending packet to us", conn.RemoteAddr())
				case errors.Is(err, core.ErrMalformedHandshake), errors.Is(err, core.ErrNotValidHandshake):
					log.Debugf("closing %v: %v", conn.RemoteAddr(), err)
				default:
					log.Debugf("error while trying to read from %v: %v", conn.RemoteAddr(), err)
				}
			}
			dur := time.Since(start).Seconds()
			labels := prometheus.Labels{"type": req.Type.String(), "action": ans.action.String()}
			processRequests.With(labels).Observe(dur)
		case <-bw.closeCh:
			return
		}
	}
}

// ProcessConnection classifies conn and decides what to do with it, the
// answer itself is carried out in its own goroutine.
func (bw *BasicWorker) ProcessConnection(conn net.Conn) (core.RequestData, Answer, error) {
	if bw.refuser != nil && bw.refuser.Refuse(conn.RemoteAddr()) {
		return core.RequestData{Addr: conn.RemoteAddr()}, Answer{action: core.CLOSE}, core.ErrBanned
	}
	reader := bufio.NewReaderSize(conn, mc.ClassifyBufferSize)
	req, err := bw.ReadConnection(conn, reader)
	if err != nil {
		return req, Answer{action: core.CLOSE}, err
	}
	ans := bw.ProcessRequest(req)
	if req.Type == mc.Login {
		log.Infof("%s (%v) will take action: %v", req.Username, req.Addr, ans.Action())
	} else {
		log.Debugf("%v request from %v will take action: %v", req.Type, req.Addr, ans.Action())
	}
	go func() {
		if err := bw.ProcessAnswer(conn, reader, req, ans); err != nil {
			logAnswerErr(req, ans, err)
		}
	}()
	return req, ans, nil
}

func (bw *BasicWorker) ReadConnection(conn net.Conn, reader *bufio.Reader) (core.RequestData, error) {
	conn.SetDeadline(bw.IODeadline())
	c, err := mc.Classify(reader)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return core.RequestData{}, core.ErrClientToSlow
	} else if err != nil {
		return core.RequestData{}, err
	}
	conn.SetDeadline(time.Time{})
	return core.NewRequestData(conn.RemoteAddr(), c), nil
}

func (bw *BasicWorker) ProcessRequest(req core.RequestData) Answer {
	if ok, err := bw.access.Allow(req); !ok {
		return rejectAnswer(req, err)
	}
	if req.Legacy {
		return Answer{action: core.LEGACY_STATUS}
	}
	if req.Type == mc.Status {
		return Answer{action: core.STATUS}
	}

	if bw.server.State() == core.Running {
		return Answer{action: core.PROXY}
	}
	if ok, err := bw.wakeGate.Allow(req); !ok {
		return rejectAnswer(req, err)
	}
	return Answer{
		action: core.OCCUPY,
		woke:   bw.server.Wake(),
	}
}

func rejectAnswer(req core.RequestData, err error) Answer {
	var rejection *module.Rejection
	if !errors.As(err, &rejection) || rejection.Drop || req.Type != mc.Login {
		return Answer{action: core.CLOSE, rejection: rejection}
	}
	return Answer{action: core.DISCONNECT, rejection: rejection}
}

func (bw *BasicWorker) ProcessAnswer(conn net.Conn, reader *bufio.Reader, req core.RequestData, ans Answer) error {
	switch ans.Action() {
	case core.PROXY:
		return bw.dispatcher.forwardToServer(conn, reader, req)
	case core.OCCUPY:
		return bw.dispatcher.Occupy(conn, reader, req, ans.woke)
	case core.STATUS:
		return bw.answerStatus(conn, reader, req)
	case core.LEGACY_STATUS:
		defer conn.Close()
		_, err := conn.Write(bw.legacyStatus().Marshal())
		return err
	case core.DISCONNECT:
		defer conn.Close()
		conn.SetWriteDeadline(bw.IODeadline())
		return mc.NewMcConn(conn).WritePacket(ans.rejection.Kick())
	case core.CLOSE:
		conn.Close()
	}
	return nil
}

// answerStatus lets a running server answer itself, otherwise (or when it
// cannot be reached) the status is made up from the config and the last
// status the server gave.
func (bw *BasicWorker) answerStatus(conn net.Conn, reader *bufio.Reader, req core.RequestData) error {
	if bw.server.State() == core.Running {
		server, err := bw.upstream.Dial(req)
		if err == nil {
			if _, err := server.Write(req.Replay()); err == nil {
				return Relay(conn, reader, server, server)
			}
			server.Close()
		}
		log.Debugf("answering status of %v ourselves: %v", req.Addr, err)
	}

	defer conn.Close()
	conn.SetDeadline(bw.IODeadline())
	clientMcConn := mc.NewMcConnWithReader(conn, reader)
	if _, err := clientMcConn.ReadPacket(); err != nil {
		return err
	}
	if err := clientMcConn.WritePacket(bw.Status().Marshal()); err != nil {
		return err
	}
	pingPk, err := clientMcConn.ReadPacket()
	if err != nil {
		return err
	}
	ping, err := mc.UnmarshalServerBoundPing(pingPk)
	if err != nil {
		return err
	}
	return clientMcConn.WritePacket(mc.ClientBoundPong{Time: ping.Time}.Marshal())
}

// Status is the status shown while the server cannot answer itself.
func (bw *BasicWorker) Status() mc.SimpleStatus {
	status := mc.SimpleStatus{
		Name:        bw.cfg.Version,
		Protocol:    bw.cfg.Protocol,
		Description: motd(bw.cfg.Motd, bw.server.State()),
	}
	probed, ok := bw.server.Status()
	if !ok {
		return status
	}
	status.Name = probed.Version.Name
	status.Protocol = probed.Version.Protocol
	status.MaxPlayers = probed.Players.Max
	status.Favicon = probed.Favicon
	if bw.cfg.Motd.FromServer && len(probed.Description) > 0 {
		status.RawDescription = probed.Description
	}
	return status
}

func (bw *BasicWorker) legacyStatus() mc.LegacyStatus {
	status := bw.Status()
	description := status.Description
	if len(status.RawDescription) > 0 {
		description = mc.PlainText(status.RawDescription)
	}
	return mc.LegacyStatus{
		Protocol:   status.Protocol,
		Version:    status.Name,
		Motd:       strings.ReplaceAll(description, "\n", " "),
		MaxPlayers: status.MaxPlayers,
	}
}

func motd(cfg config.MotdConfig, state core.ServerState) string {
	switch state {
	case core.Sleeping:
		return cfg.Sleeping
	case core.Stopping:
		return cfg.Stopping
	}
	return cfg.Starting
}

func logAnswerErr(req core.RequestData, ans Answer, err error) {
	name := req.Username
	if name == "" {
		name = req.IP()
	}
	switch {
	case errors.Is(err, core.ErrClientClosedConn), errors.Is(err, os.ErrDeadlineExceeded):
		log.Debugf("%s: %v", name, err)
	case errors.Is(err, core.ErrUpstreamConnect):
		log.Warnf("%s: %v", name, err)
	default:
		log.Infof("%v for %s ended: %v", ans.Action(), name, err)
	}
}
