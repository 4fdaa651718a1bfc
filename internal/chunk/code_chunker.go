package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/syntheo/semantics/internal/hash"
)

// CodeChunkerOptions configures the code chunker behavior.
type CodeChunkerOptions struct {
	TargetTokens int // preferred chunk size before splitting (default DefaultTargetTokens)
	MaxTokens    int // hard ceiling before a block must be split (default DefaultMaxChunkTokens)
	OverlapTokens int // overlap applied symmetrically around split windows (default DefaultOverlapTokens)
}

// CodeChunker implements AST-aware code chunking using tree-sitter, walking
// the parse tree depth-first and emitting one Block per semantic node kind.
type CodeChunker struct {
	parser    *Parser
	extractor *SymbolExtractor
	registry  *LanguageRegistry
	options   CodeChunkerOptions
}

// NewCodeChunker creates a new code chunker with default options.
func NewCodeChunker() *CodeChunker {
	return NewCodeChunkerWithOptions(CodeChunkerOptions{})
}

// NewCodeChunkerWithOptions creates a new code chunker with custom options.
func NewCodeChunkerWithOptions(opts CodeChunkerOptions) *CodeChunker {
	if opts.TargetTokens == 0 {
		opts.TargetTokens = DefaultTargetTokens
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = DefaultMaxChunkTokens
	}
	if opts.OverlapTokens == 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}

	registry := DefaultRegistry()
	return &CodeChunker{
		parser:    NewParserWithRegistry(registry),
		extractor: NewSymbolExtractorWithRegistry(registry),
		registry:  registry,
		options:   opts,
	}
}

// Close releases chunker resources.
func (c *CodeChunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// SupportedExtensions returns file extensions this chunker handles.
func (c *CodeChunker) SupportedExtensions() []string {
	return c.registry.SupportedExtensions()
}

// Chunk splits a file into semantic chunks. Falls back to a single
// file-level block when no semantic block is emitted.
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if len(file.Content) == 0 {
		return nil, nil
	}

	now := time.Now()

	config, supported := c.registry.GetByName(file.Language)
	if !supported {
		return c.fileFallback(file, now), nil
	}

	tree, err := c.parser.Parse(ctx, file.Content, file.Language)
	if err != nil {
		return c.fileFallback(file, now), nil
	}

	fileContext := c.enrichContextWithFilePath(file.Path, file.Language,
		c.extractFileContext(tree, file.Content, file.Language))

	symbolKinds := buildSymbolKindSet(config)

	w := &walker{
		chunker:     c,
		tree:        tree,
		file:        file,
		fileContext: fileContext,
		language:    file.Language,
		symbolKinds: symbolKinds,
		now:         now,
	}
	w.walk(tree.Root, "")

	if len(w.blocks) == 0 {
		return c.fileFallback(file, now), nil
	}

	return w.blocks, nil
}

// walker performs the depth-first recursive descent described by the
// chunking algorithm: semantic nodes emit a Block and recurse only into
// their non-semantic children, carrying their own symbol name forward as
// parent_symbol; non-semantic nodes simply pass the parent_symbol through.
type walker struct {
	chunker     *CodeChunker
	tree        *Tree
	file        *FileInput
	fileContext string
	language    string
	symbolKinds map[string]SymbolType
	now         time.Time
	blocks      []*Chunk
}

func (w *walker) walk(n *Node, parentSymbol string) {
	if n == nil {
		return
	}

	symType, isSemantic := w.symbolKinds[n.Type]
	if !isSemantic {
		for _, child := range n.Children {
			w.walk(child, parentSymbol)
		}
		return
	}

	name := w.chunker.extractor.extractName(n, w.tree.Source, nil, w.language)
	docComment := w.chunker.extractor.extractDocComment(n, w.tree.Source, w.language)
	signature := w.chunker.extractor.extractSignature(n, w.tree.Source, symType, w.language)
	w.blocks = append(w.blocks, w.chunker.emitBlocks(n, w.tree, w.file, w.fileContext, name, parentSymbol, symType, docComment, signature, w.now)...)

	nextParent := name
	if nextParent == "" {
		nextParent = parentSymbol
	}
	for _, child := range n.Children {
		if _, childSemantic := w.symbolKinds[child.Type]; childSemantic {
			continue
		}
		w.walk(child, nextParent)
	}
}

// buildSymbolKindSet flattens a LanguageConfig's node-kind lists into a
// single type->SymbolType lookup.
func buildSymbolKindSet(config *LanguageConfig) map[string]SymbolType {
	kinds := make(map[string]SymbolType)
	for _, t := range config.FunctionTypes {
		kinds[t] = SymbolTypeFunction
	}
	for _, t := range config.MethodTypes {
		kinds[t] = SymbolTypeMethod
	}
	for _, t := range config.ClassTypes {
		kinds[t] = SymbolTypeClass
	}
	for _, t := range config.InterfaceTypes {
		kinds[t] = SymbolTypeInterface
	}
	for _, t := range config.TypeDefTypes {
		kinds[t] = SymbolTypeType
	}
	for _, t := range config.ConstantTypes {
		kinds[t] = SymbolTypeConstant
	}
	for _, t := range config.VariableTypes {
		kinds[t] = SymbolTypeVariable
	}
	return kinds
}

// emitBlocks produces one or more Blocks for a single semantic node,
// splitting into overlapping sub-blocks if the node exceeds MaxTokens.
func (c *CodeChunker) emitBlocks(n *Node, tree *Tree, file *FileInput, fileContext string, name, parentSymbol string, symType SymbolType, docComment, signature string, now time.Time) []*Chunk {
	raw := n.GetContent(tree.Source)
	tokens := estimateTokens(raw)

	startLine := int(n.StartPoint.Row) + 1
	endLine := int(n.EndPoint.Row) + 1

	if tokens <= c.options.MaxTokens {
		chunk := c.newChunk(file, raw, fileContext, n.Type, name, parentSymbol, startLine, endLine, 0, tokens, now)
		attachSymbol(chunk, name, symType, startLine, endLine, signature, docComment)
		return []*Chunk{chunk}
	}

	chunks := c.splitByLines(file, raw, fileContext, n.Type, name, parentSymbol, startLine, now)
	for _, chunk := range chunks {
		attachSymbol(chunk, name, symType, chunk.StartLine, chunk.EndLine, signature, docComment)
	}
	return chunks
}

// attachSymbol populates a Chunk's legacy Symbols slice with full metadata,
// keeping search-side symbol ranking grounded in the extractor's output.
func attachSymbol(chunk *Chunk, name string, symType SymbolType, startLine, endLine int, signature, docComment string) {
	if name == "" {
		return
	}
	chunk.Symbols = []*Symbol{{
		Name:       name,
		Type:       symType,
		StartLine:  startLine,
		EndLine:    endLine,
		Signature:  signature,
		DocComment: docComment,
	}}
}

// splitByLines walks the node's lines, accumulating estimated tokens
// until target_tokens is reached, then emits an overlapping window per
// the sizing policy: window = [cursor-overlap, cursor_end+overlap]
// clipped to the node's line range, and cursor advances to the window
// end.
func (c *CodeChunker) splitByLines(file *FileInput, content, fileContext, blockType, name, parentSymbol string, nodeStartLine int, now time.Time) []*Chunk {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 {
		return nil
	}

	lineTokens := make([]int, len(lines))
	totalTokens := 0
	for i, l := range lines {
		lineTokens[i] = estimateTokens(l)
		totalTokens += lineTokens[i]
	}
	avgTokensPerLine := 1
	if len(lines) > 0 && totalTokens/len(lines) > 1 {
		avgTokensPerLine = totalTokens / len(lines)
	}
	overlapLines := c.options.OverlapTokens / avgTokensPerLine
	if overlapLines < 1 {
		overlapLines = 1
	}

	var chunks []*Chunk
	cursor := 0
	chunkIndex := 0

	for cursor < len(lines) {
		sum := 0
		cursorEnd := cursor
		for cursorEnd < len(lines) {
			sum += lineTokens[cursorEnd]
			if sum >= c.options.TargetTokens {
				break
			}
			cursorEnd++
		}
		if cursorEnd >= len(lines) {
			cursorEnd = len(lines) - 1
		}

		windowStart := cursor - overlapLines
		if windowStart < 0 {
			windowStart = 0
		}
		windowEnd := cursorEnd + overlapLines
		if windowEnd >= len(lines) {
			windowEnd = len(lines) - 1
		}

		windowContent := strings.Join(lines[windowStart:windowEnd+1], "\n")
		startLine := nodeStartLine + windowStart
		endLine := nodeStartLine + windowEnd
		tokens := estimateTokens(windowContent)

		chunks = append(chunks, c.newChunk(file, windowContent, fileContext, blockType, name, parentSymbol, startLine, endLine, chunkIndex, tokens, now))
		chunkIndex++

		if windowEnd >= len(lines)-1 {
			break
		}
		cursor = windowEnd
	}

	return chunks
}

// newChunk builds a Chunk/Block with its spec-mandated block_id.
func (c *CodeChunker) newChunk(file *FileInput, rawContent, fileContext, blockType, name, parentSymbol string, startLine, endLine, chunkIndex, tokens int, now time.Time) *Chunk {
	id := hash.BlockID(file.Path, startLine, endLine, blockType, chunkIndex)
	contentHash := sha256.Sum256([]byte(rawContent))

	return &Chunk{
		ID:           id,
		FilePath:     file.Path,
		Content:      combineContextAndContent(fileContext, rawContent),
		RawContent:   rawContent,
		Context:      fileContext,
		ContentHash:  hex.EncodeToString(contentHash[:]),
		ContentType:  ContentTypeCode,
		BlockType:    blockType,
		Language:     file.Language,
		StartLine:    startLine,
		EndLine:      endLine,
		SymbolName:   name,
		ParentSymbol: parentSymbol,
		ChunkIndex:   chunkIndex,
		Tokens:       tokens,
		Metadata:     make(map[string]string),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// extractFileContext extracts package declaration and imports from a file.
func (c *CodeChunker) extractFileContext(tree *Tree, source []byte, language string) string {
	var parts []string

	switch language {
	case "go":
		parts = c.extractGoContext(tree, source)
	case "typescript", "tsx":
		parts = c.extractTSContext(tree, source)
	case "javascript", "jsx":
		parts = c.extractJSContext(tree, source)
	case "python":
		parts = c.extractPythonContext(tree, source)
	}

	return strings.Join(parts, "\n\n")
}

func (c *CodeChunker) extractGoContext(tree *Tree, source []byte) []string {
	var parts []string

	for _, node := range tree.Root.Children {
		if node.Type == "package_clause" {
			parts = append(parts, node.GetContent(source))
			break
		}
	}

	for _, node := range tree.Root.Children {
		if node.Type == "import_declaration" {
			parts = append(parts, node.GetContent(source))
		}
	}

	return parts
}

func (c *CodeChunker) extractTSContext(tree *Tree, source []byte) []string {
	return c.extractJSContext(tree, source)
}

func (c *CodeChunker) extractJSContext(tree *Tree, source []byte) []string {
	var parts []string

	for _, node := range tree.Root.Children {
		if node.Type == "import_statement" {
			parts = append(parts, node.GetContent(source))
		}
	}

	return parts
}

func (c *CodeChunker) extractPythonContext(tree *Tree, source []byte) []string {
	var parts []string

	for _, node := range tree.Root.Children {
		if node.Type == "import_statement" || node.Type == "import_from_statement" {
			parts = append(parts, node.GetContent(source))
		}
	}

	return parts
}

// fileFallback emits block_type="file" blocks covering the entire file,
// split into overlapping windows if the file itself exceeds MaxTokens.
func (c *CodeChunker) fileFallback(file *FileInput, now time.Time) []*Chunk {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil
	}

	tokens := estimateTokens(content)
	if tokens <= c.options.MaxTokens {
		lineCount := strings.Count(content, "\n") + 1
		return []*Chunk{c.newChunk(file, content, "", "file", "", "", 1, lineCount, 0, tokens, now)}
	}

	return c.splitByLines(file, content, "", "file", "", "", 1, now)
}

// estimateTokens estimates the number of tokens using the sizing policy's
// whitespace-word-count formula: ceil(0.75 * word_count).
func estimateTokens(content string) int {
	words := len(strings.Fields(content))
	return int(math.Ceil(0.75 * float64(words)))
}

// combineContextAndContent combines context and raw content into full content.
func combineContextAndContent(context, rawContent string) string {
	if context == "" {
		return rawContent
	}
	return context + "\n\n" + rawContent
}

// enrichContextWithFilePath prepends a file path marker to the context.
// This helps embedding models understand file location and scope.
func (c *CodeChunker) enrichContextWithFilePath(filePath, language, existingContext string) string {
	if filePath == "" {
		return existingContext
	}

	var marker string
	switch language {
	case "python":
		marker = fmt.Sprintf("# File: %s", filePath)
	default:
		marker = fmt.Sprintf("// File: %s", filePath)
	}

	if existingContext == "" {
		return marker
	}
	return marker + "\n" + existingContext
}
