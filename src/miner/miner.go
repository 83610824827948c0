package miner

import (
	"github.com/remnetwork/dvm-miner/src/config"
	"github.com/remnetwork/dvm-miner/src/identity"
	xnet "github.com/remnetwork/dvm-miner/src/net"
	"github.com/remnetwork/dvm-miner/src/node"
	"github.com/remnetwork/dvm-miner/src/service"
	"github.com/remnetwork/dvm-miner/src/store"
)

// Miner is a struct containing all the components of a miner node: the
// durable identity, the capacity-bounded vector store, the coordinator
// session and the local stats service.
type Miner struct {
	Config        *config.Config
	Identity      *identity.NodeIdentity
	IdentityStore *identity.Store
	Store         *store.Store
	Node          *node.Node
	Service       *service.Service
}

// NewMiner ...
func NewMiner(config *config.Config) *Miner {
	engine := &Miner{
		Config: config,
	}

	return engine
}

// Init initialises the miner components in dependency order. Identity errors
// are fatal; the node must not register with an identity it cannot prove was
// persisted.
func (m *Miner) Init() error {
	if err := m.initIdentity(); err != nil {
		m.Config.Logger().WithError(err).Error("miner.go:Init() initIdentity")
		return err
	}

	if err := m.initStore(); err != nil {
		m.Config.Logger().WithError(err).Error("miner.go:Init() initStore")
		return err
	}

	if err := m.initNode(); err != nil {
		m.Config.Logger().WithError(err).Error("miner.go:Init() initNode")
		return err
	}

	if err := m.initService(); err != nil {
		m.Config.Logger().WithError(err).Error("miner.go:Init() initService")
		return err
	}

	return nil
}

// Run starts the service and the coordinator session. It blocks until the
// node stops.
func (m *Miner) Run() error {
	if m.Service != nil {
		go m.Service.Serve()
	}

	defer m.Store.Close()

	return m.Node.Run()
}

// Shutdown requests a clean stop of the node.
func (m *Miner) Shutdown() {
	if m.Node != nil {
		m.Node.Shutdown()
	}
}

func (m *Miner) initIdentity() error {
	m.IdentityStore = identity.NewStore(m.Config.IdentityFile())

	id, err := m.IdentityStore.Load()
	if err != nil {
		return err
	}

	m.Identity = id

	m.Config.Logger().WithField("node_id", id.NodeID).Debug("Loaded identity")

	return nil
}

func (m *Miner) initStore() error {
	if m.Config.Store {
		s, err := store.LoadOrCreateBadger(
			m.Identity.RAMCommitmentBytes,
			m.Config.DatabaseDir,
			m.Config.Logger())
		if err != nil {
			return err
		}
		m.Store = s
		return nil
	}

	m.Store = store.New(m.Identity.RAMCommitmentBytes, m.Config.Logger())
	return nil
}

func (m *Miner) initNode() error {
	var layer xnet.StreamLayer
	if m.Config.NoTLS {
		layer = &xnet.TCPStreamLayer{}
	} else {
		layer = &xnet.TLSStreamLayer{SkipVerify: m.Config.SkipVerify}
	}

	m.Node = node.NewNode(m.Config, m.Identity, m.IdentityStore, m.Store, layer)
	return nil
}

func (m *Miner) initService() error {
	if !m.Config.NoService {
		m.Service = service.NewService(m.Config.ServiceAddr, m.Node, m.Config.Logger())
	}
	return nil
}
