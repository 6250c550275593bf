package types

import "time"

// Pool is a set of homogeneous compute nodes.
type Pool struct {
	ID                        string
	PlatformImage             *PlatformImageReference // xor CustomImageID
	CustomImageID             string
	VMSize                    string
	TargetDedicated           int
	TargetPreemptible         int
	MaxTasksPerNode           int
	InterNodeCommunication    bool
	Subnet                    string
	Accelerator               *AcceleratorSpec
	PreloadImages             []string // image ids, preload set
	Mounts                    []*VolumeMount
	StartTaskCommand          string
	StartTaskResourceFiles    []ResourceFile
	NativeContainerMode       bool
	DataReplication           DataReplicationPolicy
	AutoscaleEnabled          bool
	AutoscaleExempt           bool
	ResizeDownPolicy          ResizeDownPolicy
	RebootOnStartTaskFailed   bool
	AttemptRecoveryOnUnusable bool
	BlockUntilResourcesLoaded bool
	TransferFilesOnCreation   bool
	VirtualNetworkARMID       string
	CustomImageARMID          string
	Location                  string
	Windows                   bool
	ContainerRegistries       ContainerRegistryAccess
	State                     PoolState
	CreatedAt                 time.Time
}

// Validate enforces the pool invariants of spec.md §3.
func (p *Pool) Validate() error {
	if p.PlatformImage != nil && p.CustomImageID != "" {
		return &ValidationError{Path: "pool.image", Msg: "platform image and custom image are mutually exclusive"}
	}
	if p.PlatformImage == nil && p.CustomImageID == "" {
		return &ValidationError{Path: "pool.image", Msg: "exactly one of platform image or custom image is required"}
	}
	if p.InterNodeCommunication && p.TargetDedicated > 0 && p.TargetPreemptible > 0 {
		return &ValidationError{Path: "pool.inter_node_communication_enabled", Msg: "requires dedicated==0 or preemptible==0"}
	}
	return nil
}

// PlatformImageReference identifies a marketplace image.
type PlatformImageReference struct {
	Publisher string
	Offer     string
	SKU       string
	Version   string
}

// AcceleratorSpec describes GPU/RDMA node capability.
type AcceleratorSpec struct {
	GPUDriverSource string
	Infiniband      bool
}

// ContainerRegistryAccess describes which registries a pool may pull from.
type ContainerRegistryAccess struct {
	PrivateDockerHub bool
	Public           []string
	PrivateMirror    string // non-empty if a private mirror is configured
}

// DataReplicationPolicy controls image distribution strategy (§4.D).
type DataReplicationPolicy struct {
	PeerToPeerEnabled         bool
	DirectDownloadSeedBias    int
	ConcurrentSourceDownloads int
	CompressionEnabled        bool
}

// ResizeDownPolicy controls how a pool handles node removal on scale-down (§4.I).
type ResizeDownPolicy string

const (
	ResizeDownTaskCompletion ResizeDownPolicy = "taskcompletion"
	ResizeDownRequeue        ResizeDownPolicy = "requeue"
	ResizeDownTerminate      ResizeDownPolicy = "terminate"
	ResizeDownRetainedData   ResizeDownPolicy = "retaineddata"
)

// PoolState is the pool-level lifecycle state (§4.I).
type PoolState string

const (
	PoolAbsent     PoolState = "absent"
	PoolAllocating PoolState = "allocating"
	PoolPreparing  PoolState = "preparing"
	PoolReady      PoolState = "ready"
	PoolResizing   PoolState = "resizing"
	PoolDeleting   PoolState = "deleting"
)

// Node lives inside a Pool.
type Node struct {
	ID                string
	PoolID            string
	State             NodeState
	IsPreemptible     bool
	StartTaskExitCode *int
	StartTaskStdout   string
	StartTaskStderr   string
	RebootAttempted   bool
	RecoveryAttempts  int
	CreatedAt         time.Time
}

// NodeState mirrors the observable node states of spec.md §3.
type NodeState string

const (
	NodeCreating            NodeState = "creating"
	NodeStarting            NodeState = "starting"
	NodeWaitingForStartTask NodeState = "waiting_for_start_task"
	NodeStartTaskFailed     NodeState = "start_task_failed"
	NodeIdle                NodeState = "idle"
	NodeRunning             NodeState = "running"
	NodeUnusable            NodeState = "unusable"
	NodePreempted           NodeState = "preempted"
	NodeDeallocated         NodeState = "deallocated"
)

// IsTransient reports whether the node is mid allocation (invariant 1, §8).
func (s NodeState) IsTransient() bool {
	return s == NodeCreating
}

// Job owns an ordered set of task descriptors.
type Job struct {
	ID             string
	PoolID         string // mutually exclusive with FederationID
	FederationID   string
	Tasks          []*TaskDescriptor
	EnvOverrides   map[string]string
	MaxTaskRetries int
	AutoComplete   bool
	State          JobState
	Location       string // set by federation proxy on successful submit (§4.J.5)
	CreatedAt      time.Time
}

// Validate enforces the job/federation-binding invariant of spec.md §3.
func (j *Job) Validate() error {
	if j.PoolID != "" && j.FederationID != "" {
		return &ValidationError{Path: "job", Msg: "a job bound to a federation has no direct pool reference"}
	}
	return nil
}

// JobState is the job lifecycle state (§3).
type JobState string

const (
	JobNew        JobState = "new"
	JobActive     JobState = "active"
	JobCompleted  JobState = "completed"
	JobTerminated JobState = "terminated"
	JobDeleted    JobState = "deleted"
)

// ResourceFile is a file staged onto a node before task execution.
type ResourceFile struct {
	Path string
	URL  string
	Mode string // optional file mode, e.g. "0755"
}

// InputData is an ingress clause scoped to pool, job, or task (§4.H).
type InputData struct {
	Scope               IngressScope
	SourcePath          string // object-storage path; empty if PriorTaskID set
	PriorTaskID         string // prior-task output as source
	Include             []string
	Exclude             []string
	Destination         string
	DriverExtraOptions  string
}

// IngressScope is the caching scope of an ingress unit (§4.H).
type IngressScope string

const (
	IngressScopePool IngressScope = "pool"
	IngressScopeJob  IngressScope = "job"
	IngressScopeTask IngressScope = "task"
)

// OutputData is an egress clause, fired only after task success (§4.H).
type OutputData struct {
	SourcePath         string
	DestinationPath    string
	Include            []string
	Exclude            []string
	FireAndForget      bool
	DriverExtraOptions string
}

// MultiInstanceClause expands a task into a coordination + application pair (§3).
type MultiInstanceClause struct {
	CoordinationCommand       string
	NumberOfInstances         int
	CoordinationResourceFiles []ResourceFile
}

// TaskDescriptor is immutable after submission (§3).
type TaskDescriptor struct {
	ID                 string
	JobID              string
	Image              ImageReference
	Command            string
	EntrypointOverride string
	Env                map[string]string
	Ports              []int
	DataVolumeMounts   []string // mount aliases
	ResourceFiles      []ResourceFile
	InputData          []InputData
	OutputData         []OutputData
	ContainerRunOptions string
	RemoveAfterExit    bool
	ShmSize            string
	Infiniband         bool
	GPU                bool
	Exclusive          bool
	RetentionTime      time.Duration
	MaxTaskRetries     int
	MultiInstance      *MultiInstanceClause
	UserIdentity       string
	Factory            *TaskFactory // attached to at most one descriptor per job (§3)
	DependsOn          []string
	DependsOnRange     *IDRange

	State TaskState
}

// IDRange is an inclusive [From, To] dependency range (§3, §8: [a,a] -> {a}).
type IDRange struct {
	From, To string
}

// TaskState is the task lifecycle state (§3).
type TaskState string

const (
	TaskExpanded   TaskState = "expanded"
	TaskSubmitted  TaskState = "submitted"
	TaskQueued     TaskState = "queued"
	TaskRunning    TaskState = "running"
	TaskSucceeded  TaskState = "succeeded"
	TaskFailed     TaskState = "failed"
	TaskTerminated TaskState = "terminated"
)

// IsTerminal reports whether the state is one of the task's terminal states.
func (s TaskState) IsTerminal() bool {
	return s == TaskSucceeded || s == TaskFailed || s == TaskTerminated
}

// TaskFactoryKind selects the expansion algorithm (§3, §4.F).
type TaskFactoryKind string

const (
	FactoryRepeat       TaskFactoryKind = "repeat"
	FactoryProduct      TaskFactoryKind = "product"
	FactoryCombinations TaskFactoryKind = "combinations"
	FactoryPermutations TaskFactoryKind = "permutations"
	FactoryZip          TaskFactoryKind = "zip"
	FactoryFile         TaskFactoryKind = "file"
)

// TaskFactory is a template producing sibling task descriptors (§3, §4.F).
type TaskFactory struct {
	Kind TaskFactoryKind

	// repeat
	Repeat int

	// product
	Ranges []IntRange

	// combinations / permutations
	Iterable        []string
	Length          int
	WithReplacement bool

	// zip
	Iterables [][]string

	// file
	RemotePath       string
	Include          []string
	Exclude          []string
	FilepathTemplate string
}

// IntRange is a half-open [Start, Stop) range with a step (§4.F).
type IntRange struct {
	Start, Stop, Step int
}

// ImageReference is a fully-qualified registry reference (§3).
type ImageReference struct {
	Registry              string
	Repository            string
	Tag                   string
	Digest                string // optional, if known
	DecryptCertThumbprint string // optional, for encrypted containers
	SigningKeyFingerprint string // optional
}

// VolumeMount is a data_volume (host bind) or shared_data_volume (named driver) (§3).
type VolumeMount struct {
	Alias   string
	Kind    VolumeKind
	Driver  string // for shared_data_volume: object-storage-backed, nfs, glusterfs
	Target  string
	Options map[string]string
}

// VolumeKind distinguishes host bind mounts from shared filesystem mounts.
type VolumeKind string

const (
	VolumeDataVolume       VolumeKind = "data_volume"
	VolumeSharedDataVolume VolumeKind = "shared_data_volume"
)

// Federation is a logical name spanning member pools across regions (§3).
type Federation struct {
	ID                string
	Members           []FederationMember
	UniqueJobIDs      bool
	StorageAccount    string
	PollFederationSec int
	PollActionSec     int
	BlackoutInterval  time.Duration
	LogPersistPath    string
	CreatedAt         time.Time
}

// FederationMember is one pool's membership record in a Federation (§3).
type FederationMember struct {
	PoolID            string
	AccountServiceURL string
	Region            string
}

// FederatedActionKind enumerates the action kinds of §3.
type FederatedActionKind string

const (
	ActionAddJob    FederatedActionKind = "add_job"
	ActionTerminate FederatedActionKind = "terminate"
	ActionDelete    FederatedActionKind = "delete"
	ActionZap       FederatedActionKind = "zap"
)

// FederatedAction is a queued message against a Federation (§3).
type FederatedAction struct {
	Sequence        int64
	UniqueID        string
	Kind            FederatedActionKind
	JobID           string
	TargetGroupHash string
	Tasks           []*TaskDescriptor
	Constraints     *ConstraintSet
	Status          ActionStatus
	RetryCount      int
}

// ActionStatus is the observer-visible federation action state (§4.K, §7).
type ActionStatus string

const (
	ActionQueued    ActionStatus = "queued"
	ActionRunning   ActionStatus = "running"
	ActionBlocked   ActionStatus = "blocked"
	ActionFailed    ActionStatus = "failed"
	ActionSucceeded ActionStatus = "succeeded"
)

// ConstraintSet is the predicate set attached to a federated job (§4.J).
type ConstraintSet struct {
	AutoscaleAllow            bool
	AutoscaleExclusive        bool
	LowPriorityAllow          bool
	LowPriorityExclusive      bool
	Native                    bool
	Windows                   bool
	Location                  string
	PrivateDockerHub          bool
	PublicRegistries          []string
	MaxActiveTaskBacklogRatio float64
	AutoscaleExempt           bool
	CustomImageARMID          string
	VirtualNetworkARMID       string
	VMSize                    string
	CoresAmount               float64
	MemoryAmount              int64
	SchedulableVariance       float64
	Exclusive                 bool
	GPU                       bool
	Infiniband                bool
}

// PoolMatchState is the runtime state of a pool as seen during constraint matching (§4.J).
type PoolMatchState struct {
	Pool               *Pool
	IdleNodes          int
	RunningNodes       int
	ActiveTasks        int
	Autoscale          bool
	AutoscaleSteady    bool
	Cores              float64
	MemoryBytes        int64
	RemainingQuota     int
	LastLocationForJob string // prior location of a co-scheduled group for the same job
}

// Secret is encrypted sensitive data, decrypted only in memory (§3, §4.B).
type Secret struct {
	Name      string
	Plaintext []byte // never persisted; held only by the credential store
}

// Event is an engine-observable event for streaming consumers (§4.K observer).
type Event struct {
	Type         string
	Timestamp    time.Time
	PoolID       string
	JobID        string
	TaskID       string
	FederationID string
	ActionID     string
	Message      string
	Data         map[string]string
}
