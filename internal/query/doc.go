// Package query compiles and renders parameterized SQL templates.
//
// Templates use a small directive language:
//
//	{% if query_type == 'daily_revenue' %}
//	SELECT DATE(created_at) AS day, SUM(total) AS revenue
//	FROM `{{ dataset }}.orders`
//	WHERE DATE(created_at) BETWEEN '{{ start_date }}' AND '{{ end_date }}'
//	{% if segment %}
//	  AND {{ segment }} IS NOT NULL
//	{% endif %}
//	LIMIT {{ limit | default }}
//	{% endif %}
//
// Supported directives are if/elif/else/endif and for/endfor. Expressions
// are flat parameter names, literals, ==, !=, and, or, not, parentheses and
// a closed filter set: default, join, tojson and map('tojson').
//
// Every placeholder gets a Role when the template is parsed, from the SQL
// region it sits in: inside single quotes it is a string literal, inside
// backticks an identifier, after LIMIT or an operator a number, behind a
// serializing filter a list. Rendering escapes the value for that role and
// fails with a typed *RenderError instead of splicing anything unsafe.
//
// Example usage:
//
//	tmpl, err := query.Parse("orders", source, query.WithDefaults(map[string]query.Value{
//	    "limit": query.Integer(100),
//	}))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sql, err := query.Render(tmpl, query.Context{
//	    "query_type": query.String("daily_revenue"),
//	    "dataset":    query.String("analytics"),
//	    "start_date": query.String("2024-01-01"),
//	    "end_date":   query.String("2024-01-31"),
//	})
//	if errors.Is(err, query.ErrUnsafeIdentifier) {
//	    ...
//	}
package query
