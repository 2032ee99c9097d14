package download

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"net/url"
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"github.com/oneconcern/provisioner/pkg/errors"
	"go.uber.org/zap"
)

const maxPageSize = 4 << 20

// Discovery resolves the actual download link of an artifact published behind a landing page.
//
// The link is, by order of preference:
//   - the page URL itself after redirects, when it matches Pattern
//   - the first anchor on the page with a matching href, resolved against the page URL
//   - the first match of Pattern anywhere in the page body, with HTML entities decoded
type Discovery struct {
	Page    string `json:"page" yaml:"page" mapstructure:"page"`
	Pattern string `json:"pattern" yaml:"pattern" mapstructure:"pattern"`
}

// Discover resolves a link, retrying transport failures like a download would
func (d *Downloader) Discover(ctx context.Context, disc Discovery, task Task) (string, error) {
	task = withDefaults(task)
	re, err := regexp.Compile(disc.Pattern)
	if err != nil {
		return "", errors.New(fmt.Sprintf("invalid link pattern %q", disc.Pattern)).Of(errors.ErrPackage).Wrap(err)
	}

	var link string
	_, err = d.retry(ctx, disc.Page, task, func(actx context.Context) error {
		var err error
		link, err = d.discoverOnce(actx, disc.Page, re)
		return err
	})
	if err != nil {
		return "", err
	}
	d.l.Info("download link discovered", zap.String("page", disc.Page), zap.String("url", link))
	return link, nil
}

func (d *Downloader) discoverOnce(ctx context.Context, page string, re *regexp.Regexp) (string, error) {
	resp, err := d.get(ctx, page)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	final := resp.Request.URL
	if re.MatchString(final.String()) {
		// redirected straight to the artifact: no need to read it
		return final.String(), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return "", errors.New(fmt.Sprintf("reading %s", page)).Of(errors.ErrTransport).Wrap(err)
	}

	if link, ok := findAnchor(body, final, re); ok {
		return link, nil
	}
	if match := re.Find(body); match != nil {
		return resolve(final, html.UnescapeString(string(match))), nil
	}
	return "", errors.New(fmt.Sprintf("no link matching %q found on %s", re.String(), page)).Of(errors.ErrPackage)
}

func findAnchor(body []byte, base *url.URL, re *regexp.Regexp) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", false
	}
	var link string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if href == "" {
			return true
		}
		candidate := resolve(base, href)
		if re.MatchString(href) || re.MatchString(candidate) {
			link = candidate
			return false
		}
		return true
	})
	return link, link != ""
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
