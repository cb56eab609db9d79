package rigelnet

// RPCHandler processes one self-describing RPC payload (everything after
// the rpcId prefix the dispatcher has already consumed) received from
// sender, which is either a client index (on the server) or
// ServerSenderIndex (on the client).
type RPCHandler func(sender int, payload []byte) error

// ServerSenderIndex is the synthetic sender index a client's handlers see,
// since a client only ever talks to the one server it is connected to.
const ServerSenderIndex = -1

// Recipient selects who a composed packet is sent to.
type Recipient struct {
	kind recipientKind
	idx  int
}

type recipientKind int

const (
	recipientClient recipientKind = iota
	recipientAllClients
	recipientServer
)

// ToClient addresses a single connected client by its slot index.
func ToClient(index int) Recipient { return Recipient{kind: recipientClient, idx: index} }

// ToAllClients addresses every connected client.
func ToAllClients() Recipient { return Recipient{kind: recipientAllClients} }

// ToServer addresses the one server a client is connected to.
func ToServer() Recipient { return Recipient{kind: recipientServer} }

// handlerTable is a statically registered map from RPC id to handler,
// shared by Server and Client.
type handlerTable struct {
	handlers map[uint32]RPCHandler
}

func newHandlerTable() *handlerTable {
	return &handlerTable{handlers: map[uint32]RPCHandler{}}
}

// Register binds id to handler. Registering an id twice replaces the
// previous handler.
func (t *handlerTable) Register(id uint32, handler RPCHandler) {
	t.handlers[id] = handler
}

func (t *handlerTable) dispatch(sender int, rpcID uint32, payload []byte) error {
	h, ok := t.handlers[rpcID]
	if !ok {
		return nil
	}
	return h(sender, payload)
}
