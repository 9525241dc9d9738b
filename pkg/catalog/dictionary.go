package catalog

import (
	"context"
	"net/http"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"github.com/dcgoodwin2112/dkanClientTools-sub000/internal/common/httpclient"
	"github.com/dcgoodwin2112/dkanClientTools-sub000/pkg/catalog/query"
)

// tableSchemaDef validates the fields/types/constraints document inside a
// data dictionary before it is sent to the service. Kept deliberately close
// to the frictionless table-schema subset the service accepts.
const tableSchemaDef = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["fields"],
  "properties": {
    "fields": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "title": {"type": "string"},
          "type": {
            "type": "string",
            "enum": ["string", "number", "integer", "boolean", "date", "datetime", "time", "year", "object", "array", "any"]
          },
          "format": {"type": "string"},
          "constraints": {"type": "object"}
        }
      }
    }
  }
}`

var tableSchema = jsonschema.MustCompileString("table-schema.json", tableSchemaDef)

// validateDictionary checks a dictionary client-side so malformed documents
// fail before any network call.
func validateDictionary(d DataDictionary) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return ErrValidation.MsgErr("invalid data dictionary", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ErrValidation.MsgErr("invalid data dictionary", err)
	}
	if err := tableSchema.Validate(doc); err != nil {
		return ErrValidation.MsgErr("data dictionary failed schema validation", err)
	}
	return nil
}

// CreateDataDictionary creates a data dictionary after validating its table
// schema client-side.
func (c *Client) CreateDataDictionary(ctx context.Context, d DataDictionary) (*DataDictionary, error) {
	if err := validateDictionary(d); err != nil {
		return nil, err
	}
	body, err := json.Marshal(d)
	if err != nil {
		return nil, ErrValidation.MsgErr("invalid data dictionary", err)
	}
	resp, err := c.mutate(ctx, MutationCreateDictionary, DictionaryVars{Identifier: d.Identifier}, httpclient.RequestOptions{
		Method: http.MethodPost,
		Path:   path.Join(metastoreBase, "data-dictionary", "items"),
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	if id := gjson.GetBytes(resp, "identifier").String(); id != "" {
		d.Identifier = id
	}
	return &d, nil
}

// UpdateDataDictionary replaces a data dictionary wholesale.
func (c *Client) UpdateDataDictionary(ctx context.Context, d DataDictionary) (*DataDictionary, error) {
	if strings.TrimSpace(d.Identifier) == "" {
		return nil, fieldError("identifier", "must not be empty")
	}
	if err := validateDictionary(d); err != nil {
		return nil, err
	}
	body, err := json.Marshal(d)
	if err != nil {
		return nil, ErrValidation.MsgErr("invalid data dictionary", err)
	}
	_, err = c.mutate(ctx, MutationUpdateDictionary, DictionaryVars{Identifier: d.Identifier}, httpclient.RequestOptions{
		Method: http.MethodPut,
		Path:   path.Join(metastoreBase, "data-dictionary", "items", d.Identifier),
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteDataDictionary removes a data dictionary.
func (c *Client) DeleteDataDictionary(ctx context.Context, identifier string) error {
	if strings.TrimSpace(identifier) == "" {
		return fieldError("identifier", "must not be empty")
	}
	_, err := c.mutate(ctx, MutationDeleteDictionary, DictionaryVars{Identifier: identifier}, httpclient.RequestOptions{
		Method: http.MethodDelete,
		Path:   path.Join(metastoreBase, "data-dictionary", "items", identifier),
	})
	return err
}

// GetDataDictionary fetches one data dictionary by identifier.
func (c *Client) GetDataDictionary(ctx context.Context, identifier string) (*DataDictionary, error) {
	if strings.TrimSpace(identifier) == "" {
		return nil, fieldError("identifier", "must not be empty")
	}
	key := query.Key{"schema", "data-dictionary", "single", identifier}
	v, err := c.getJSON(ctx, key, c.metadataStale(), httpclient.RequestOptions{
		Method: http.MethodGet,
		Path:   path.Join(metastoreBase, "data-dictionary", "items", identifier),
	}, decodeValue[DataDictionary])
	if err != nil {
		return nil, err
	}
	return v.(*DataDictionary), nil
}

// ListDataDictionaries lists every data dictionary on the service.
func (c *Client) ListDataDictionaries(ctx context.Context) ([]DataDictionary, error) {
	key := query.Key{"schema", "data-dictionary"}
	v, err := c.getJSON(ctx, key, c.metadataStale(), httpclient.RequestOptions{
		Method: http.MethodGet,
		Path:   path.Join(metastoreBase, "data-dictionary", "items"),
	}, decodeValue[[]DataDictionary])
	if err != nil {
		return nil, err
	}
	return *v.(*[]DataDictionary), nil
}

// GetSchemaByURL fetches a schema document referenced by absolute URL, as
// found in a distribution's describedBy field. The URL itself is the cache
// key; documents on foreign hosts are fetched as-is.
func (c *Client) GetSchemaByURL(ctx context.Context, url string) (*DataDictionary, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fieldError("url", "must not be empty")
	}
	key := query.Key{"schema", "by-url", url}
	v, err := c.getJSON(ctx, key, c.metadataStale(), httpclient.RequestOptions{
		Method:      http.MethodGet,
		AbsoluteURL: url,
	}, decodeValue[DataDictionary])
	if err != nil {
		return nil, err
	}
	return v.(*DataDictionary), nil
}
