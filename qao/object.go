package qao

// EventID names one of the fixed, globally-ordered update passes a Scheduler
// runs every step. The order is part of the scheduler's contract: all
// attached objects finish EventPreUpdate before any object begins
// EventBeginUpdate, and so on down the list.
type EventID int

const (
	EventPreUpdate EventID = iota
	EventBeginUpdate
	EventUpdate1
	EventUpdate2
	EventEndUpdate
	EventPostUpdate
	EventPreDraw
	EventDraw1
	EventDraw2
	EventDrawGUI
	EventPostDraw
	EventDisplay
	eventCount
)

var eventNames = [eventCount]string{
	EventPreUpdate:   "PreUpdate",
	EventBeginUpdate: "BeginUpdate",
	EventUpdate1:     "Update1",
	EventUpdate2:     "Update2",
	EventEndUpdate:   "EndUpdate",
	EventPostUpdate:  "PostUpdate",
	EventPreDraw:     "PreDraw",
	EventDraw1:       "Draw1",
	EventDraw2:       "Draw2",
	EventDrawGUI:     "DrawGUI",
	EventPostDraw:    "PostDraw",
	EventDisplay:     "Display",
}

func (e EventID) String() string {
	if e < 0 || e >= eventCount {
		return "EventID(invalid)"
	}
	return eventNames[e]
}

// Object is anything a Scheduler can attach, order, and step. Concrete
// objects embed Base, which supplies Context and satisfies this interface;
// callers implement whichever of the EventID-named optional interfaces below
// they care about.
type Object interface {
	Context() *Context
}

// Lifecycle hooks a Scheduler checks for once, around attachment and
// detachment, the same optional-interface dispatch as the twelve event
// hooks below. SetUp runs after construction but before the object is
// registered with the scheduler; a non-nil error aborts the attach (calling
// TearDown first, if implemented) and the object never becomes attached.
// DidAttach runs once attachment is fully complete. WillDetach runs before
// any scheduler bookkeeping for the object is torn down; TearDown runs
// after that bookkeeping and the object's Context have been reset, just
// before its slot is freed.
type (
	SetUpper     interface{ SetUp() error }
	DidAttacher  interface{ DidAttach() }
	WillDetacher interface{ WillDetach() }
	TearDowner   interface{ TearDown() }
)

// The following optional interfaces mirror the fixed event order in EventID.
// A Scheduler checks each attached object against all twelve once, at attach
// time, and caches the result — stepping never repeats the type assertions.
type (
	PreUpdater   interface{ PreUpdate() }
	BeginUpdater interface{ BeginUpdate() }
	Update1er    interface{ Update1() }
	Update2er    interface{ Update2() }
	EndUpdater   interface{ EndUpdate() }
	PostUpdater  interface{ PostUpdate() }
	PreDrawer    interface{ PreDraw() }
	Draw1er      interface{ Draw1() }
	Draw2er      interface{ Draw2() }
	DrawGUIer    interface{ DrawGUI() }
	PostDrawer   interface{ PostDraw() }
	Displayer    interface{ Display() }
)

// Context is embedded (via Base) in every attached Object. It carries the
// object's identity and scheduling bookkeeping; it is only ever mutated by
// the Scheduler that owns the object.
type Context struct {
	id          ObjectId
	scheduler   *Scheduler
	name        string
	priority    int32
	token       uint64
	stepOrdinal int64
}

// Id returns the object's identity within its Scheduler, or NullObjectId if
// the object is not currently attached.
func (c *Context) Id() ObjectId {
	if c == nil {
		return NullObjectId
	}
	return c.id
}

// Scheduler returns the Scheduler the object is attached to, or nil.
func (c *Context) Scheduler() *Scheduler {
	if c == nil {
		return nil
	}
	return c.scheduler
}

// Name returns the object's diagnostic name, set at construction time.
func (c *Context) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Priority returns the object's current execution priority. Higher values
// step earlier within an event pass.
func (c *Context) Priority() int32 {
	if c == nil {
		return 0
	}
	return c.priority
}

func (c *Context) isAttached() bool {
	return c != nil && c.scheduler != nil
}

// Base is embedded by concrete Object implementations to satisfy the Object
// interface and carry per-instance scheduling state. It must not be copied
// after attachment.
type Base struct {
	ctx Context
}

// Context returns the embedding object's scheduling context.
func (b *Base) Context() *Context {
	return &b.ctx
}
