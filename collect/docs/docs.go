// Package docs collects the ECloud API documentation tree into a
// directory of Markdown files.
//
// The collector mirrors the documentation outline on disk: branch
// nodes become directories and leaf nodes with an article become
// Markdown files, with the article's PDF rendition downloaded next to
// the Markdown when one is published.
package docs

import (
	"context"
	"encoding/json"
	"html"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/pkg/errors"

	"github.com/ecloudtools/ecollect/ecloud/api"
	"github.com/ecloudtools/ecollect/lib/log"
)

// API is the part of the ecloud client the collector uses
type API interface {
	CategoryInfo(ctx context.Context, category string) (*api.CategoryInfo, error)
	OutlineTree(ctx context.Context, outlineID string) ([]api.OutlineNode, error)
	FullOutlineTree(ctx context.Context) ([]api.OutlineNode, error)
	ArticleInfo(ctx context.Context, articleID string) (*api.ArticleInfo, error)
	ArticleContent(ctx context.Context, contentUID string) (string, error)
	ResourceFile(ctx context.Context, uid, filename string) ([]byte, error)
}

// Options defines what to collect and where to put it.
//
// The modes are tried in priority order: ArticleID, then OutlineID,
// then Category, then the full documentation tree.
type Options struct {
	Category  string // documentation category id
	OutlineID string // outline id, takes precedence over Category
	ArticleID string // single article id, takes precedence over both
	OutputDir string // defaults to "api_docs"
}

// Collector fetches documentation and writes it to disk
type Collector struct {
	api  API
	opt  Options
	conv *md.Converter
}

// New creates a Collector
func New(a API, opt Options) *Collector {
	if opt.OutputDir == "" {
		opt.OutputDir = "api_docs"
	}
	return &Collector{
		api:  a,
		opt:  opt,
		conv: md.NewConverter("", true, nil),
	}
}

// String converts the collector into a string for logging
func (c *Collector) String() string {
	return "docs"
}

var (
	tagRe     = regexp.MustCompile(`<[^>]+>`)
	invalidRe = regexp.MustCompile(`[<>:"/\\|?*]`)
	spaceRe   = regexp.MustCompile(`\s+`)
)

// sanitizeFilename makes a node title safe to use as a file name:
// HTML tags are stripped, entities decoded, characters invalid on
// common filesystems replaced with "_", whitespace collapsed and the
// result capped at 100 runes.
func sanitizeFilename(name string) string {
	name = tagRe.ReplaceAllString(name, "")
	name = strings.TrimSpace(html.UnescapeString(name))
	name = invalidRe.ReplaceAllString(name, "_")
	name = spaceRe.ReplaceAllString(name, " ")
	if runes := []rune(name); len(runes) > 100 {
		name = string(runes[:100])
	}
	return strings.TrimSpace(name)
}

// Collect runs the collection for the configured mode.
func (c *Collector) Collect(ctx context.Context) error {
	if c.opt.ArticleID != "" {
		return c.collectArticle(ctx)
	}
	nodes, err := c.resolveTree(ctx)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return errors.New("documentation tree is empty")
	}
	if err := os.MkdirAll(c.opt.OutputDir, 0755); err != nil {
		return errors.Wrap(err, "failed to make output dir")
	}
	return c.walk(ctx, nodes)
}

// resolveTree fetches the tree for the configured mode
func (c *Collector) resolveTree(ctx context.Context) ([]api.OutlineNode, error) {
	outlineID := c.opt.OutlineID
	if outlineID == "" && c.opt.Category != "" {
		info, err := c.api.CategoryInfo(ctx, c.opt.Category)
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve category")
		}
		if info.OutlineID == "" {
			return nil, errors.Errorf("category %q has no outline", c.opt.Category)
		}
		outlineID = string(info.OutlineID)
		log.Infof(c, "category %q has outline %q", c.opt.Category, outlineID)
	}
	if outlineID != "" {
		return c.api.OutlineTree(ctx, outlineID)
	}
	log.Infof(c, "no category or outline given - collecting the full documentation tree")
	return c.api.FullOutlineTree(ctx)
}

// workItem is one node of the tree waiting to be processed, together
// with the directory (relative to OutputDir) it belongs in.
type workItem struct {
	node api.OutlineNode
	dir  string
}

// walk processes the tree with an explicit worklist so arbitrarily
// deep trees can't exhaust the stack.
func (c *Collector) walk(ctx context.Context, roots []api.OutlineNode) error {
	stack := make([]workItem, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, workItem{node: roots[i]})
	}
	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if err := ctx.Err(); err != nil {
			return err
		}
		node := item.node
		title := sanitizeFilename(node.Name)
		if title == "" {
			log.Logf(c, "skipping node with empty title (article %q)", node.ArticleID)
			continue
		}
		switch {
		case len(node.Children) == 0 && node.ArticleID != "":
			if err := c.writeArticle(ctx, node.ArticleID, item.dir, title); err != nil {
				log.Errorf(c, "failed to collect %q: %v", title, err)
			}
		case len(node.Children) > 0:
			dir := filepath.Join(item.dir, title)
			if err := os.MkdirAll(filepath.Join(c.opt.OutputDir, dir), 0755); err != nil {
				return errors.Wrapf(err, "failed to make %q", dir)
			}
			log.Debugf(c, "entering %q", dir)
			for i := len(node.Children) - 1; i >= 0; i-- {
				stack = append(stack, workItem{node: node.Children[i], dir: dir})
			}
		default:
			log.Debugf(c, "skipping %q - no article and no children", title)
		}
	}
	return nil
}

// collectArticle collects the single configured article into the root
// of the output directory.
func (c *Collector) collectArticle(ctx context.Context) error {
	info, err := c.api.ArticleInfo(ctx, c.opt.ArticleID)
	if err != nil {
		return errors.Wrap(err, "failed to read article info")
	}
	title := sanitizeFilename(info.Title)
	if title == "" {
		title = "article_" + c.opt.ArticleID
	}
	if err := os.MkdirAll(c.opt.OutputDir, 0755); err != nil {
		return errors.Wrap(err, "failed to make output dir")
	}
	return c.writeContent(ctx, info, "", title)
}

// writeArticle fetches an article and writes it under dir
func (c *Collector) writeArticle(ctx context.Context, articleID, dir, title string) error {
	log.Infof(c, "collecting %q (article %q)", filepath.Join(dir, title), articleID)
	info, err := c.api.ArticleInfo(ctx, articleID)
	if err != nil {
		return errors.Wrap(err, "failed to read article info")
	}
	return c.writeContent(ctx, info, dir, title)
}

// contentSource is one place an article's content may come from
type contentSource struct {
	name string
	uid  string
}

// writeContent writes an article's Markdown (and PDF if published) to
// disk.  Content sources are tried in order: the PDF rendition's
// content uid, then contentPublished, then content.
func (c *Collector) writeContent(ctx context.Context, info *api.ArticleInfo, dir, title string) error {
	base := filepath.Join(c.opt.OutputDir, dir, title)

	var sources []contentSource
	if info.PdfPublished != "" {
		var ref api.PdfRef
		if err := json.Unmarshal([]byte(info.PdfPublished), &ref); err != nil {
			log.Debugf(c, "ignoring unparseable pdfPublished for %q: %v", title, err)
		} else if ref.UID != "" {
			sources = append(sources, contentSource{name: "pdfPublished", uid: ref.UID})
			c.downloadPDF(ctx, &ref, base)
		}
	}
	if info.ContentPublished != "" {
		sources = append(sources, contentSource{name: "contentPublished", uid: info.ContentPublished})
	}
	if info.Content != "" {
		sources = append(sources, contentSource{name: "content", uid: info.Content})
	}

	for _, source := range sources {
		htmlContent, err := c.api.ArticleContent(ctx, source.uid)
		if err != nil {
			log.Debugf(c, "%s for %q failed: %v", source.name, title, err)
			continue
		}
		markdown, err := c.conv.ConvertString(htmlContent)
		if err != nil {
			log.Debugf(c, "markdown conversion of %s for %q failed: %v", source.name, title, err)
			continue
		}
		content := "# " + title + "\n\n" + strings.TrimSpace(markdown)
		if err := ioutil.WriteFile(base+".md", []byte(content), 0644); err != nil {
			return errors.Wrapf(err, "failed to write %q", base+".md")
		}
		log.Infof(c, "wrote %q from %s", base+".md", source.name)
		return nil
	}
	return errors.Errorf("no accessible content for %q", title)
}

// downloadPDF saves the published PDF next to the Markdown.  Failure
// is logged, not fatal - the Markdown fallback chain still runs.
func (c *Collector) downloadPDF(ctx context.Context, ref *api.PdfRef, base string) {
	filename := ref.Filename
	if filename == "" {
		filename = "document.pdf"
	}
	body, err := c.api.ResourceFile(ctx, ref.UID, filename)
	if err != nil {
		log.Logf(c, "PDF download failed for %q: %v", base, err)
		return
	}
	if err := ioutil.WriteFile(base+".pdf", body, 0644); err != nil {
		log.Errorf(c, "failed to write %q: %v", base+".pdf", err)
		return
	}
	log.Infof(c, "wrote %q", base+".pdf")
}
