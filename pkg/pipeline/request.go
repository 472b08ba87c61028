package pipeline

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/wilhg/shopmcp/pkg/auth"
	"github.com/wilhg/shopmcp/pkg/contract"
	"github.com/wilhg/shopmcp/pkg/errmodel"
	"github.com/wilhg/shopmcp/pkg/upstream"
)

// BuildRequest derives the upstream request for validated arguments.
//
// Path placeholders are filled and escaped, listed query arguments are
// serialized with arrays in repeated-key form, and listed body arguments form
// the JSON body. Absent, null and empty values never reach the query string.
// The Authorization header is set when cred is present.
func BuildRequest(c *contract.ToolContract, args map[string]any, cred auth.Credential) (*upstream.Request, error) {
	path, err := fillPath(c, args)
	if err != nil {
		return nil, err
	}
	req := &upstream.Request{
		Method: c.Route.Method,
		Path:   path,
		Header: http.Header{},
	}

	q := url.Values{}
	for _, name := range c.Route.Query {
		addQuery(q, name, args[name])
	}
	if len(q) > 0 {
		req.Query = q
	}

	switch c.Route.Method {
	case http.MethodGet, http.MethodHead, http.MethodDelete:
	default:
		body := map[string]any{}
		for _, name := range c.Route.Body {
			if v, ok := args[name]; ok && v != nil {
				body[name] = v
			}
		}
		req.Body = body
	}

	if cred.Present() {
		req.Header.Set("Authorization", cred.Header())
	}
	return req, nil
}

func fillPath(c *contract.ToolContract, args map[string]any) (string, error) {
	path := c.Route.Path
	for {
		open := strings.IndexByte(path, '{')
		if open < 0 {
			return path, nil
		}
		end := strings.IndexByte(path[open:], '}')
		if end < 0 {
			return "", errmodel.System("bad_route", fmt.Sprintf("tool %s has an unterminated path placeholder", c.Name), nil, nil)
		}
		name := path[open+1 : open+end]
		v, ok := scalar(args[name])
		if !ok || v == "" {
			return "", errmodel.InvalidInput(c.Name, fmt.Errorf("missing path argument %q", name))
		}
		path = path[:open] + url.PathEscape(v) + path[open+end+1:]
	}
}

func addQuery(q url.Values, name string, v any) {
	switch t := v.(type) {
	case nil:
	case []any:
		for _, e := range t {
			if s, ok := scalar(e); ok && s != "" {
				q.Add(name, s)
			}
		}
	case []string:
		for _, e := range t {
			if e != "" {
				q.Add(name, e)
			}
		}
	default:
		if s, ok := scalar(t); ok && s != "" {
			q.Set(name, s)
		}
	}
}

// scalar renders a JSON scalar the way the upstream API expects it in a URL.
func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}
