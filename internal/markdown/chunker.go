package markdown

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// DefaultMaxChunkChars bounds a chunk so it embeds in one request.
const DefaultMaxChunkChars = 3000

// Chunk represents a section of a markdown document with header context.
type Chunk struct {
	Index      int    // Position in document (0, 1, 2...)
	HeaderPath string // Hierarchy: "# Doc Title > ## Section Name"
	Content    string // Chunk content WITH header path prepended
	RawContent string // Original content without header prefix
}

// Chunker splits markdown documents at header boundaries while preserving context.
type Chunker struct {
	parser   goldmark.Markdown
	maxChars int
}

// NewChunker creates a chunker. Sections longer than maxChars are split at
// paragraph boundaries; a non-positive value means DefaultMaxChunkChars.
func NewChunker(maxChars int) *Chunker {
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Chunker{parser: md, maxChars: maxChars}
}

// section is an H1 or H2 heading and the byte offset where its line starts.
type section struct {
	level int
	title string
	start int
}

// ChunkDocument splits markdown at H1 and H2 boundaries. Each section runs
// up to the next H1 or H2; text before the first heading is its own chunk.
func (c *Chunker) ChunkDocument(source []byte) ([]Chunk, error) {
	doc := c.parser.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	var sections []section
	flatten(doc, source, tree.Items, &sections)

	var chunks []Chunk
	if len(sections) == 0 {
		c.appendChunks(&chunks, "", strings.TrimSpace(string(source)))
		return chunks, nil
	}

	c.appendChunks(&chunks, "", strings.TrimSpace(string(source[:sections[0].start])))

	var h1 string
	for i, s := range sections {
		end := len(source)
		if i+1 < len(sections) {
			end = sections[i+1].start
		}
		if s.level == 1 {
			h1 = s.title
		}
		body := strings.TrimSpace(string(source[s.start:end]))
		if !hasBody(body) {
			continue
		}
		c.appendChunks(&chunks, headerPath(h1, s), body)
	}
	return chunks, nil
}

// flatten lists the TOC headings in document order.
func flatten(doc ast.Node, source []byte, items toc.Items, out *[]section) {
	for _, item := range items {
		if n := findHeaderByID(doc, string(item.ID)); n != nil && n.Lines().Len() > 0 {
			*out = append(*out, section{
				level: n.Level,
				title: string(item.Title),
				start: lineStart(source, n.Lines().At(0).Start),
			})
		}
		flatten(doc, source, item.Items, out)
	}
}

// appendChunks adds body as one chunk, or several when it exceeds maxChars.
func (c *Chunker) appendChunks(chunks *[]Chunk, path, body string) {
	if body == "" {
		return
	}
	for _, part := range splitParagraphs(body, c.maxChars) {
		content := part
		if path != "" {
			content = path + "\n\n" + part
		}
		*chunks = append(*chunks, Chunk{
			Index:      len(*chunks),
			HeaderPath: path,
			Content:    content,
			RawContent: part,
		})
	}
}

// splitParagraphs packs blank-line separated paragraphs into pieces of at
// most max characters. A single longer paragraph is cut by characters.
func splitParagraphs(body string, max int) []string {
	if utf8.RuneCountInString(body) <= max {
		return []string{body}
	}

	var parts []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, strings.TrimSpace(cur.String()))
			cur.Reset()
			curLen = 0
		}
	}

	for _, p := range strings.Split(body, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n := utf8.RuneCountInString(p)
		if n > max {
			flush()
			r := []rune(p)
			for len(r) > 0 {
				k := min(max, len(r))
				parts = append(parts, string(r[:k]))
				r = r[k:]
			}
			continue
		}
		if curLen > 0 && curLen+2+n > max {
			flush()
		}
		if curLen > 0 {
			cur.WriteString("\n\n")
			curLen += 2
		}
		cur.WriteString(p)
		curLen += n
	}
	flush()
	return parts
}

// headerPath builds the hierarchy string for a section.
// Example: H1 "Installation", H2 "Prerequisites" -> "# Installation > ## Prerequisites"
func headerPath(h1 string, s section) string {
	if s.level == 1 || h1 == "" {
		return strings.Repeat("#", s.level) + " " + s.title
	}
	return "# " + h1 + " > ## " + s.title
}

// hasBody reports whether a section holds more than its heading line.
func hasBody(section string) bool {
	_, rest, _ := strings.Cut(section, "\n")
	rest = strings.TrimSpace(rest)
	// setext underline
	return rest != "" && strings.Trim(rest, "=-") != ""
}

// findHeaderByID locates a heading node by its auto-generated ID.
func findHeaderByID(node ast.Node, id string) *ast.Heading {
	var found *ast.Heading
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			heading := n.(*ast.Heading)
			headingID, ok := heading.AttributeString("id")
			if ok && string(headingID.([]byte)) == id {
				found = heading
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}

func lineStart(source []byte, pos int) int {
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}
