package capability

import (
	"context"
	"sync"
	"time"

	"github.com/batchshipyard/engine/pkg/types"
)

// FakePlatform is an in-memory ComputePlatform used by tests and local
// development. The real cloud binding is an external collaborator per
// spec.md §1; this fake exercises the same interface so pool/federation
// logic can be tested without one.
type FakePlatform struct {
	mu           sync.Mutex
	pools        map[string]*types.Pool
	nodes        map[string][]*types.Node // poolID -> nodes
	jobs         map[string]*types.Job
	failNext     map[string]*AdapterError // op -> error to return once
	files        map[string][]byte        // "poolID/nodeID/path" -> content
	uploadedLogs map[string][2][]byte      // "poolID/nodeID" -> [stdout, stderr]
}

// NewFakePlatform creates an empty fake platform.
func NewFakePlatform() *FakePlatform {
	return &FakePlatform{
		pools:        make(map[string]*types.Pool),
		nodes:        make(map[string][]*types.Node),
		jobs:         make(map[string]*types.Job),
		failNext:     make(map[string]*AdapterError),
		files:        make(map[string][]byte),
		uploadedLogs: make(map[string][2][]byte),
	}
}

// SetFile seeds content returned by a later StreamFile call.
func (f *FakePlatform) SetFile(poolID, nodeID, path string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[poolID+"/"+nodeID+"/"+path] = data
}

// UploadedLogs returns what a prior UploadLogs call recorded for a node, if any.
func (f *FakePlatform) UploadedLogs(poolID, nodeID string) (stdout, stderr []byte, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.uploadedLogs[poolID+"/"+nodeID]
	if !ok {
		return nil, nil, false
	}
	return v[0], v[1], true
}

// InjectFailure makes the next call to op return err once.
func (f *FakePlatform) InjectFailure(op string, err *AdapterError) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[op] = err
}

func (f *FakePlatform) takeFailure(op string) error {
	if err, ok := f.failNext[op]; ok {
		delete(f.failNext, op)
		return err
	}
	return nil
}

func (f *FakePlatform) CreatePool(_ context.Context, _ time.Time, p *types.Pool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("CreatePool"); err != nil {
		return err
	}
	f.pools[p.ID] = p
	nodes := make([]*types.Node, 0, p.TargetDedicated+p.TargetPreemptible)
	for i := 0; i < p.TargetDedicated; i++ {
		nodes = append(nodes, &types.Node{ID: p.ID + "-ded-" + itoa(i), PoolID: p.ID, State: types.NodeCreating})
	}
	for i := 0; i < p.TargetPreemptible; i++ {
		nodes = append(nodes, &types.Node{ID: p.ID + "-pre-" + itoa(i), PoolID: p.ID, State: types.NodeCreating, IsPreemptible: true})
	}
	f.nodes[p.ID] = nodes
	return nil
}

func (f *FakePlatform) ResizePool(_ context.Context, _ time.Time, poolID string, dedicated, preemptible int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("ResizePool"); err != nil {
		return err
	}
	p, ok := f.pools[poolID]
	if !ok {
		return NewError(KindNotFound, "ResizePool", errNotFound)
	}
	p.TargetDedicated = dedicated
	p.TargetPreemptible = preemptible
	return nil
}

func (f *FakePlatform) DeletePool(_ context.Context, _ time.Time, poolID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("DeletePool"); err != nil {
		return err
	}
	delete(f.pools, poolID)
	delete(f.nodes, poolID)
	return nil
}

func (f *FakePlatform) AddJob(_ context.Context, _ time.Time, j *types.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("AddJob"); err != nil {
		return err
	}
	f.jobs[j.ID] = j
	return nil
}

func (f *FakePlatform) SubmitTasks(_ context.Context, _ time.Time, jobID string, tasks []*types.TaskDescriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("SubmitTasks"); err != nil {
		return err
	}
	if len(tasks) > 100 {
		return NewError(KindPermanentOther, "SubmitTasks", errBatchTooLarge)
	}
	if j, ok := f.jobs[jobID]; ok {
		j.Tasks = append(j.Tasks, tasks...)
	}
	return nil
}

func (f *FakePlatform) TerminateTasks(_ context.Context, _ time.Time, jobID string, taskIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.takeFailure("TerminateTasks")
}

func (f *FakePlatform) ListNodes(_ context.Context, _ time.Time, poolID string) ([]*types.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("ListNodes"); err != nil {
		return nil, err
	}
	return f.nodes[poolID], nil
}

func (f *FakePlatform) RebootNode(_ context.Context, _ time.Time, poolID, nodeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("RebootNode"); err != nil {
		return err
	}
	for _, n := range f.nodes[poolID] {
		if n.ID == nodeID {
			n.State = types.NodeStarting
			n.RebootAttempted = true
		}
	}
	return nil
}

func (f *FakePlatform) DeleteNode(_ context.Context, _ time.Time, poolID, nodeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("DeleteNode"); err != nil {
		return err
	}
	kept := f.nodes[poolID][:0]
	for _, n := range f.nodes[poolID] {
		if n.ID != nodeID {
			kept = append(kept, n)
		}
	}
	f.nodes[poolID] = kept
	return nil
}

func (f *FakePlatform) StreamFile(_ context.Context, _ time.Time, poolID, nodeID, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("StreamFile"); err != nil {
		return nil, err
	}
	data, ok := f.files[poolID+"/"+nodeID+"/"+path]
	if !ok {
		return nil, NewError(KindNotFound, "StreamFile", errFileNotFound)
	}
	return data, nil
}

func (f *FakePlatform) UploadLogs(_ context.Context, _ time.Time, poolID, nodeID string, stdout, stderr []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("UploadLogs"); err != nil {
		return err
	}
	f.uploadedLogs[poolID+"/"+nodeID] = [2][]byte{stdout, stderr}
	return nil
}

// SetNodeState lets tests drive a node directly through its state machine.
func (f *FakePlatform) SetNodeState(poolID, nodeID string, state types.NodeState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.nodes[poolID] {
		if n.ID == nodeID {
			n.State = state
		}
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

var errNotFound = simpleErr("pool not found")
var errBatchTooLarge = simpleErr("task batch exceeds 100 per call")
var errFileNotFound = simpleErr("file not found")

type simpleErr string

func (e simpleErr) Error() string { return string(e) }
