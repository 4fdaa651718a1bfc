package chunk

import (
	"context"
	"time"
)

// Chunk sizing defaults.
const (
	// DefaultTargetTokens is the preferred chunk size before a block is
	// considered for splitting.
	DefaultTargetTokens = 448
	// DefaultMaxChunkTokens is the hard ceiling; blocks over this size are
	// split into overlapping sub-blocks.
	DefaultMaxChunkTokens = 1800
	// DefaultOverlapTokens is applied symmetrically around each split
	// window's boundary.
	DefaultOverlapTokens = 50
)

// ContentType represents the type of content in a chunk
type ContentType string

const (
	ContentTypeCode     ContentType = "code"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeText     ContentType = "text"
)

// Chunk is a retrievable unit of content (the Block of the data model).
type Chunk struct {
	ID           string            // first 16 hex chars of SHA-256(file_path|start_line|end_line|block_type|chunk_index)
	FilePath     string            // Relative to project root
	Content      string            // Full content with context
	RawContent   string            // Just the symbol, no context (code only)
	Context      string            // Imports, package decl (code only)
	ContentHash  string            // SHA-256 of RawContent
	ContentType  ContentType       // code, markdown, text
	BlockType    string            // node kind (e.g. function_declaration) or "file"
	Language     string            // go, typescript, python, etc.
	StartLine    int               // 1-indexed
	EndLine      int               // Inclusive
	SymbolName   string            // name of the enclosing symbol, if any
	ParentSymbol string            // identifier of the nearest enclosing semantic ancestor
	ChunkIndex   int               // 0..N-1 among sub-blocks of the same symbol
	Tokens       int               // estimated token count (ceil(0.75 * word count))
	Symbols      []*Symbol         // Functions, classes, etc. (legacy, kept for search ranking)
	Metadata     map[string]string // Custom metadata
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FileInput is input for the Chunker interface
type FileInput struct {
	Path     string // Relative path
	Content  []byte // File content
	Language string // go, typescript, python, etc.
}

// Chunker is the interface for splitting files into chunks
type Chunker interface {
	// Chunk splits a file into semantic chunks
	Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error)

	// SupportedExtensions returns file extensions this chunker handles
	SupportedExtensions() []string
}

// SymbolType represents the kind of code symbol
type SymbolType string

const (
	SymbolTypeFunction  SymbolType = "function"
	SymbolTypeClass     SymbolType = "class"
	SymbolTypeInterface SymbolType = "interface"
	SymbolTypeType      SymbolType = "type"
	SymbolTypeVariable  SymbolType = "variable"
	SymbolTypeConstant  SymbolType = "constant"
	SymbolTypeMethod    SymbolType = "method"
)

// Symbol represents a code symbol extracted from parsing
type Symbol struct {
	Name       string
	Type       SymbolType
	StartLine  int
	EndLine    int
	Signature  string
	DocComment string
}

// Tree represents a parsed AST
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node represents a node in the AST
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point represents a position in the source code
type Point struct {
	Row    uint32 // 0-indexed line number
	Column uint32
}

// LanguageConfig holds configuration for a supported language
type LanguageConfig struct {
	Name       string
	Extensions []string

	// Node types that indicate function declarations
	FunctionTypes []string

	// Node types that indicate class/struct definitions
	ClassTypes []string

	// Node types that indicate interface definitions
	InterfaceTypes []string

	// Node types that indicate method definitions
	MethodTypes []string

	// Node types that indicate type definitions
	TypeDefTypes []string

	// Node types that indicate constant declarations
	ConstantTypes []string

	// Node types that indicate variable declarations
	VariableTypes []string

	// Node type for name identifier
	NameField string
}
