package server

import "encoding/json"

// Message types the server sends.
const (
	msgHello    = "hello"
	msgReply    = "reply"
	msgError    = "error"
	msgProgress = "progress"
	msgMessage  = "message"
	msgSignal   = "signal"
)

// Request types we send.
const (
	reqHandshake      = "handshake"
	reqConfigure      = "configure"
	reqCompute        = "compute"
	reqCodeModel      = "codemodel"
	reqCache          = "cache"
	reqGlobalSettings = "globalSettings"
	reqCMakeInputs    = "cmakeInputs"
)

// Signal names.
const (
	signalDirty      = "dirty"
	signalFileChange = "fileChange"
)

// protocolVersion is one {major, minor} pair from the hello message.
type protocolVersion struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// envelope is the correlation header common to every incoming message. The
// full raw payload travels alongside it so reply content can be decoded by
// the requester.
type envelope struct {
	Type      string `json:"type"`
	Cookie    string `json:"cookie"`
	InReplyTo string `json:"inReplyTo"`

	// error
	ErrorMessage string `json:"errorMessage"`

	// progress
	ProgressMessage string  `json:"progressMessage"`
	ProgressCurrent float64 `json:"progressCurrent"`
	ProgressMinimum float64 `json:"progressMinimum"`
	ProgressMaximum float64 `json:"progressMaximum"`

	// message
	Message string `json:"message"`
	Title   string `json:"title"`

	// signal
	Name string `json:"name"`

	// hello
	SupportedProtocolVersions []protocolVersion `json:"supportedProtocolVersions"`
}

// handshakeParams is the body of the handshake request.
type handshakeParams struct {
	ProtocolVersion protocolVersion `json:"protocolVersion"`
	SourceDirectory string          `json:"sourceDirectory"`
	BuildDirectory  string          `json:"buildDirectory"`
	Generator       string          `json:"generator"`
	Platform        string          `json:"platform,omitempty"`
	Toolset         string          `json:"toolset,omitempty"`
	ExtraGenerator  string          `json:"extraGenerator,omitempty"`
}

// serverCodeModel is the codemodel reply shape.
type serverCodeModel struct {
	Configurations []serverConfiguration `json:"configurations"`
}

type serverConfiguration struct {
	Name     string          `json:"name"`
	Projects []serverProject `json:"projects"`
}

type serverProject struct {
	Name            string         `json:"name"`
	SourceDirectory string         `json:"sourceDirectory"`
	BuildDirectory  string         `json:"buildDirectory"`
	Targets         []serverTarget `json:"targets"`
}

type serverTarget struct {
	Name            string            `json:"name"`
	Type            string            `json:"type"`
	FullName        string            `json:"fullName"`
	SourceDirectory string            `json:"sourceDirectory"`
	BuildDirectory  string            `json:"buildDirectory"`
	Artifacts       []string          `json:"artifacts"`
	Sysroot         string            `json:"sysroot"`
	FileGroups      []serverFileGroup `json:"fileGroups"`
}

type serverFileGroup struct {
	Language     string               `json:"language"`
	CompileFlags string               `json:"compileFlags"`
	IncludePath  []serverIncludeEntry `json:"includePath"`
	Defines      []string             `json:"defines"`
	Sources      []string             `json:"sources"`
	IsGenerated  bool                 `json:"isGenerated"`
	Sysroot      string               `json:"sysroot"`
}

type serverIncludeEntry struct {
	Path     string `json:"path"`
	IsSystem bool   `json:"isSystem"`
}

// serverCacheReply is the cache reply shape.
type serverCacheReply struct {
	Cache []serverCacheEntry `json:"cache"`
}

type serverCacheEntry struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

func decodeEnvelope(payload []byte) (envelope, error) {
	var env envelope
	err := json.Unmarshal(payload, &env)
	return env, err
}
