package node

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/remnetwork/dvm-miner/src/challenge"
	"github.com/remnetwork/dvm-miner/src/common"
	"github.com/remnetwork/dvm-miner/src/config"
	"github.com/remnetwork/dvm-miner/src/identity"
	xnet "github.com/remnetwork/dvm-miner/src/net"
	"github.com/remnetwork/dvm-miner/src/protocol"
	"github.com/remnetwork/dvm-miner/src/store"
	"github.com/sirupsen/logrus"
)

// sendBufSize bounds the outbound queue. Producers block when it is full,
// which backpressures challenge and search work instead of growing memory.
const sendBufSize = 64

// errForcedReconnect tears the current session down and goes back through the
// reconnection loop.
var errForcedReconnect = errors.New("forced reconnect")

// RegistrationError is returned when the coordinator explicitly rejects the
// registration. It is fatal; retrying with the same identity would loop
// forever.
type RegistrationError struct {
	Reason string
}

// Error implements the error interface.
func (e RegistrationError) Error() string {
	return fmt.Sprintf("registration rejected: %s", e.Reason)
}

// Node maintains the session with the coordinator. It owns the connection
// lifecycle, from dialing and registering through serving heartbeats,
// challenges, store requests and search queries, to reconnecting with backoff
// when the session degrades.
type Node struct {
	// The node is a FSM: Disconnected, Connecting, Registering, Active or
	// Closing.
	state

	conf   *config.Config
	logger *logrus.Entry

	id      *identity.NodeIdentity
	idStore *identity.Store

	vstore    *store.Store
	responder *challenge.Responder

	layer xnet.StreamLayer

	// sendCh is drained by a single writer goroutine per session, so enqueue
	// order is transmission order.
	sendCh chan protocol.Message

	// reconnectCh forces the current session down from a handler goroutine.
	reconnectCh chan struct{}

	heartbeatTimer *ControlTimer
	autosaveTimer  *ControlTimer

	sigintCh     chan os.Signal
	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	consecutiveFailures int32
	lastHeartbeat       int64
	lastChallenge       int64

	referralOnce sync.Once
}

// NewNode instantiates a Node with a loaded identity, a bounded vector store
// and a stream layer to reach the coordinator.
func NewNode(conf *config.Config,
	id *identity.NodeIdentity,
	idStore *identity.Store,
	vstore *store.Store,
	layer xnet.StreamLayer) *Node {

	logger := conf.Logger().WithField("node_id", id.NodeID)

	node := &Node{
		conf:           conf,
		logger:         logger,
		id:             id,
		idStore:        idStore,
		vstore:         vstore,
		responder:      challenge.NewResponder(vstore, logger),
		layer:          layer,
		sendCh:         make(chan protocol.Message, sendBufSize),
		reconnectCh:    make(chan struct{}, 1),
		heartbeatTimer: NewPeriodicControlTimer(),
		autosaveTimer:  NewPeriodicControlTimer(),
		sigintCh:       make(chan os.Signal, 1),
		shutdownCh:     make(chan struct{}),
	}

	signal.Notify(node.sigintCh, os.Interrupt, syscall.SIGTERM)

	return node
}

// Run operates the reconnection loop until Shutdown or a fatal error. It only
// returns a non-nil error for conditions that retrying cannot fix, like an
// explicitly rejected registration.
func (n *Node) Run() error {
	n.logger.WithField("coordinator", n.conf.CoordinatorAddr).Info("Starting miner node")

	go n.heartbeatTimer.Run(n.conf.HeartbeatInterval)
	go n.autosaveTimer.Run(n.conf.AutosaveInterval)
	defer n.heartbeatTimer.Shutdown()
	defer n.autosaveTimer.Shutdown()

	backoff := n.conf.MinBackoff

	for {
		if n.isShutdown() {
			return n.finalize()
		}

		n.setState(Connecting)
		n.logger.WithField("state", n.getState().String()).Debug("Run loop")

		conn, err := xnet.Dial(n.layer, n.conf.CoordinatorAddr, n.conf.DialTimeout, n.conf.WriteTimeout)
		if err != nil {
			n.setState(Disconnected)
			n.logger.WithError(err).Error("Connecting to coordinator")
			if !n.sleep(backoff) {
				return n.finalize()
			}
			backoff = nextBackoff(backoff, n.conf.MaxBackoff)
			continue
		}

		activeFor, serr := n.runSession(conn)
		conn.Close()

		if n.isShutdown() {
			return n.finalize()
		}

		n.setState(Disconnected)

		var regErr RegistrationError
		if errors.As(serr, &regErr) {
			n.logger.WithField("reason", regErr.Reason).Error("Coordinator rejected registration")
			n.finalize()
			return serr
		}

		if serr != nil {
			n.logger.WithError(serr).Warn("Session ended")
		}

		// A session that held for the stable period earns a fresh backoff.
		if activeFor >= n.conf.StablePeriod {
			backoff = n.conf.MinBackoff
		}

		n.logger.WithField("backoff", backoff.String()).Info("Reconnecting")
		if !n.sleep(backoff) {
			return n.finalize()
		}
		backoff = nextBackoff(backoff, n.conf.MaxBackoff)
	}
}

// runSession drives one connection from registration to teardown. It returns
// how long the session was active, and the error that ended it.
func (n *Node) runSession(conn *xnet.Conn) (time.Duration, error) {
	n.setState(Registering)

	// Drop messages queued for a previous session; they belong to a transport
	// that no longer exists.
	n.drainSendCh()

	recvCh := make(chan protocol.Message)
	errCh := make(chan error, 2)
	doneCh := make(chan struct{})
	defer close(doneCh)

	go func() {
		for {
			msg, err := conn.Recv()
			if err != nil {
				select {
				case errCh <- err:
				case <-doneCh:
				}
				return
			}
			select {
			case recvCh <- msg:
			case <-doneCh:
				return
			}
		}
	}()

	go func() {
		for {
			select {
			case msg := <-n.sendCh:
				if err := conn.Send(msg); err != nil {
					select {
					case errCh <- err:
					case <-doneCh:
					}
					return
				}
			case <-doneCh:
				return
			}
		}
	}()

	n.enqueue(&protocol.Register{
		NodeID:             n.id.NodeID,
		WalletAddress:      n.id.WalletAddress,
		ReferralID:         n.id.ReferralID,
		RAMCommitmentBytes: n.id.RAMCommitmentBytes,
		EmbeddingDim:       n.id.EmbeddingDim,
		IndexVersion:       n.id.IndexVersion,
		Timestamp:          time.Now().Unix(),
	})

	var activeSince time.Time
	sinceActive := func() time.Duration {
		if activeSince.IsZero() {
			return 0
		}
		return time.Since(activeSince)
	}

	regDeadline := time.After(n.conf.RegistrationTimeout)
	violations := 0

	for n.getState() == Registering {
		select {
		case msg := <-recvCh:
			ack, ok := msg.(*protocol.RegisterAck)
			if !ok {
				n.logger.WithField("msg", msg.WireType().String()).
					Warn("Unexpected message before registration ack")
				continue
			}
			if !ack.Accepted {
				return 0, RegistrationError{Reason: ack.Reason}
			}
			n.logger.Info("Registration accepted")
			n.setState(Active)
			activeSince = time.Now()
			n.referralOnce.Do(n.writeReferralInfo)
		case <-regDeadline:
			// No ack is indistinguishable from a dead transport; tear down and
			// retry rather than assuming success.
			return 0, common.NewMinerErr(common.ProtocolViolation,
				"no registration ack within %v", n.conf.RegistrationTimeout)
		case err := <-errCh:
			return 0, err
		case <-n.heartbeatTimer.tickCh:
			n.heartbeatTimer.resetCh <- n.conf.HeartbeatInterval
		case <-n.autosaveTimer.tickCh:
			n.autosaveTimer.resetCh <- n.conf.AutosaveInterval
		case <-n.sigintCh:
			n.logger.Debug("Reacting to SIGINT - shutdown")
			n.Shutdown()
			n.closeSession()
			return 0, nil
		case <-n.shutdownCh:
			n.closeSession()
			return 0, nil
		}
	}

	var hbDeadline <-chan time.Time
	hbPending := false

	for {
		select {
		case msg := <-recvCh:
			switch m := msg.(type) {
			case *protocol.HeartbeatAck:
				hbPending = false
				hbDeadline = nil
				atomic.StoreInt32(&n.consecutiveFailures, 0)
			case *protocol.Challenge:
				atomic.StoreInt64(&n.lastChallenge, time.Now().Unix())
				if !n.goFunc(func() { n.processChallenge(m) }) {
					// A dropped challenge will not be answered, which the
					// coordinator scores as a miss; count it as one here too.
					n.logger.WithField("nonce", m.Nonce).Warn("Dropping challenge, worker limit reached")
					if n.countFailure("challenge worker limit reached") {
						return sinceActive(), errForcedReconnect
					}
				}
			case *protocol.SearchQuery:
				n.processSearchQuery(m)
			case *protocol.StoreRequest:
				n.processStoreRequest(m)
			case *protocol.Error:
				n.logger.WithFields(logrus.Fields{
					"code":       m.Code,
					"request_id": m.RequestID,
				}).Warn(m.Message)
			default:
				violations++
				n.logger.WithFields(logrus.Fields{
					"msg":        msg.WireType().String(),
					"violations": violations,
				}).Warn("Dropping unexpected message")
				if violations >= n.conf.FailureThreshold {
					return sinceActive(), common.NewMinerErr(common.ProtocolViolation,
						"%d protocol violations in one session", violations)
				}
			}
		case <-n.heartbeatTimer.tickCh:
			if n.getState() == Active {
				stats := n.vstore.Stats()
				n.enqueue(&protocol.Heartbeat{
					NodeID:        n.id.NodeID,
					VectorsStored: stats.Records,
					BytesUsed:     stats.BytesUsed,
					Timestamp:     time.Now().Unix(),
				})
				atomic.StoreInt64(&n.lastHeartbeat, time.Now().Unix())
				hbPending = true
				hbDeadline = time.After(n.conf.HeartbeatTimeout)
			}
			n.heartbeatTimer.resetCh <- n.conf.HeartbeatInterval
		case <-hbDeadline:
			hbDeadline = nil
			if hbPending {
				hbPending = false
				if n.countFailure("heartbeat ack timeout") {
					return sinceActive(), errForcedReconnect
				}
			}
		case <-n.autosaveTimer.tickCh:
			if !n.goFunc(n.autosave) {
				n.logger.Warn("Skipping autosave, worker limit reached")
			}
			n.autosaveTimer.resetCh <- n.conf.AutosaveInterval
		case <-n.reconnectCh:
			return sinceActive(), errForcedReconnect
		case err := <-errCh:
			return sinceActive(), err
		case <-n.sigintCh:
			n.logger.Debug("Reacting to SIGINT - shutdown")
			n.Shutdown()
			n.closeSession()
			return sinceActive(), nil
		case <-n.shutdownCh:
			n.closeSession()
			return sinceActive(), nil
		}
	}
}

// processChallenge runs in its own goroutine; digesting a large sample must
// not stall the session loop.
func (n *Node) processChallenge(ch *protocol.Challenge) {
	resp, err := n.responder.Respond(ch)
	if err != nil {
		if common.Is(err, common.ChallengeMissed) {
			n.logger.WithField("nonce", ch.Nonce).WithError(err).Warn("Missed challenge deadline")
			if n.countFailure("challenge deadline missed") {
				n.forceReconnect()
			}
			return
		}
		n.logger.WithField("nonce", ch.Nonce).WithError(err).Error("Computing challenge response")
		return
	}
	n.enqueue(resp)
}

func (n *Node) processSearchQuery(q *protocol.SearchQuery) {
	query, err := protocol.DecodeVector(q.QueryB64, q.Dim)
	if err != nil {
		n.logger.WithField("request_id", q.RequestID).WithError(err).Warn("Decoding search query")
		n.enqueue(&protocol.Error{
			RequestID: q.RequestID,
			Code:      protocol.ErrCodeInvalidMessage,
			Message:   err.Error(),
		})
		return
	}

	results := n.vstore.Search(query, q.K)

	ids := make([]string, len(results))
	distances := make([]float32, len(results))
	for i, r := range results {
		ids[i] = r.ID
		distances[i] = r.Distance
	}

	n.enqueue(&protocol.SearchResult{
		RequestID: q.RequestID,
		NodeID:    n.id.NodeID,
		IDs:       ids,
		Distances: distances,
	})
}

func (n *Node) processStoreRequest(req *protocol.StoreRequest) {
	vectors, err := protocol.DecodeVectors(req.VectorsB64, len(req.IDs), req.Dim)
	if err != nil {
		n.logger.WithField("request_id", req.RequestID).WithError(err).Warn("Decoding store request")
		n.enqueue(&protocol.StoreResponse{
			RequestID:    req.RequestID,
			NodeID:       n.id.NodeID,
			Status:       protocol.StoreStatusError,
			ErrorMessage: err.Error(),
		})
		return
	}

	resp := &protocol.StoreResponse{
		RequestID: req.RequestID,
		NodeID:    n.id.NodeID,
		Status:    protocol.StoreStatusOK,
	}

	for i, id := range req.IDs {
		var metadata map[string]string
		if len(req.Metadata) == len(req.IDs) {
			metadata = req.Metadata[i]
		}

		if err := n.vstore.Insert(id, vectors[i], metadata); err != nil {
			if common.Is(err, common.CapacityExceeded) {
				resp.Status = protocol.StoreStatusFull
			} else {
				resp.Status = protocol.StoreStatusError
			}
			resp.ErrorMessage = err.Error()
			break
		}
		resp.StoredCount++
	}

	n.logger.WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"stored":     resp.StoredCount,
		"status":     resp.Status,
	}).Debug("Processed store request")

	n.enqueue(resp)
}

// autosave persists the identity and the store manifest. Autosave failures
// are logged and never interrupt the session; the next interval retries.
func (n *Node) autosave() {
	if err := n.idStore.Save(n.id); err != nil {
		n.logger.WithError(err).Error("Saving identity")
		return
	}

	stats := n.vstore.Stats()
	manifest := &store.Manifest{
		NodeID:              n.id.NodeID,
		SavedAt:             time.Now(),
		SessionState:        n.getState().String(),
		ConsecutiveFailures: atomic.LoadInt32(&n.consecutiveFailures),
		BytesUsed:           stats.BytesUsed,
		Records:             n.vstore.Manifest(),
	}

	if err := store.WriteManifest(n.conf.ManifestFile(), manifest); err != nil {
		n.logger.WithError(err).Error("Saving manifest")
		return
	}

	n.logger.WithField("records", len(manifest.Records)).Debug("Saved snapshot")
}

// countFailure increments the consecutive-failure counter and reports whether
// the threshold was reached. The counter resets on the next heartbeat ack,
// not on reconnection.
func (n *Node) countFailure(reason string) bool {
	failures := atomic.AddInt32(&n.consecutiveFailures, 1)
	n.logger.WithFields(logrus.Fields{
		"failures": failures,
		"reason":   reason,
	}).Warn("Coordinator failure")
	return failures >= int32(n.conf.FailureThreshold)
}

func (n *Node) forceReconnect() {
	select {
	case n.reconnectCh <- struct{}{}:
	default:
	}
}

// enqueue hands a message to the session writer. It gives up on shutdown so
// handler goroutines never block forever on a dead session.
func (n *Node) enqueue(msg protocol.Message) {
	select {
	case n.sendCh <- msg:
	case <-n.shutdownCh:
	}
}

func (n *Node) drainSendCh() {
	for {
		select {
		case <-n.sendCh:
		default:
			return
		}
	}
}

// closeSession drains in-flight handler goroutines, bounded by ShutdownGrace.
// The session writer keeps flushing queued responses until runSession
// returns.
func (n *Node) closeSession() {
	n.setState(Closing)
	n.logger.WithField("grace", n.conf.ShutdownGrace.String()).Debug("Draining in-flight work")

	if !n.waitRoutinesTimeout(n.conf.ShutdownGrace) {
		n.logger.Warn("Shutdown grace expired with work in flight")
		return
	}

	// Give the writer a moment to flush what the drained handlers enqueued.
	deadline := time.Now().Add(n.conf.ShutdownGrace)
	for len(n.sendCh) > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}

// finalize runs the final forced autosave and settles the terminal state.
func (n *Node) finalize() error {
	n.setState(Closing)
	n.autosave()
	n.waitRoutinesTimeout(n.conf.ShutdownGrace)
	n.setState(Disconnected)
	n.logger.Info("Node stopped")
	return nil
}

// sleep waits for the backoff delay. It returns false when shutdown was
// requested during the wait.
func (n *Node) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-n.sigintCh:
		n.logger.Debug("Reacting to SIGINT - shutdown")
		n.Shutdown()
		return false
	case <-n.shutdownCh:
		return false
	}
}

// Shutdown requests a clean stop. It is safe to call multiple times and from
// any goroutine.
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.logger.Debug("Shutdown")
		close(n.shutdownCh)
	})
}

func (n *Node) isShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// GetState returns the current session state.
func (n *Node) GetState() State {
	return n.getState()
}

// Stats summarises the node for the local stats service and the status
// command.
type Stats struct {
	NodeID              string      `json:"node_id"`
	State               string      `json:"state"`
	Coordinator         string      `json:"coordinator"`
	ConsecutiveFailures int32       `json:"consecutive_failures"`
	LastHeartbeat       int64       `json:"last_heartbeat"`
	LastChallenge       int64       `json:"last_challenge"`
	Store               store.Stats `json:"store"`
}

// GetStats ...
func (n *Node) GetStats() Stats {
	return Stats{
		NodeID:              n.id.NodeID,
		State:               n.getState().String(),
		Coordinator:         n.conf.CoordinatorAddr,
		ConsecutiveFailures: atomic.LoadInt32(&n.consecutiveFailures),
		LastHeartbeat:       atomic.LoadInt64(&n.lastHeartbeat),
		LastChallenge:       atomic.LoadInt64(&n.lastChallenge),
		Store:               n.vstore.Stats(),
	}
}

// writeReferralInfo drops a small informational file next to the identity
// after the first successful registration.
func (n *Node) writeReferralInfo() {
	content := fmt.Sprintf("node_id: %s\nreferral_id: %s\nregistered_at: %s\n",
		n.id.NodeID, n.id.ReferralID, time.Now().UTC().Format(time.RFC3339))

	if err := os.WriteFile(n.conf.ReferralFile(), []byte(content), 0600); err != nil {
		n.logger.WithError(err).Warn("Writing referral info")
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		next = max
	}
	return next
}
