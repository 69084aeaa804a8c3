package wire

import "fmt"

// CallBody builds the body of a Call message: [name, ...args], per spec.md
// §6.
func CallBody(name string, args ...interface{}) []interface{} {
	body := make([]interface{}, 0, len(args)+1)
	body = append(body, name)
	body = append(body, args...)
	return body
}

// ParseCall splits a decoded Call body back into its entry-point name and
// argument list.
func ParseCall(body interface{}) (name string, args []interface{}, err error) {
	list, ok := body.([]interface{})
	if !ok || len(list) == 0 {
		return "", nil, fmt.Errorf("wire: CALL body must be a non-empty list, got %T", body)
	}
	name, ok = list[0].(string)
	if !ok {
		return "", nil, fmt.Errorf("wire: CALL name must be text, got %T", list[0])
	}
	return name, list[1:], nil
}

// ExcBody builds the body of an Exc message: "ErrorKind message", per
// spec.md §6/§7.
func ExcBody(kind, message string) string {
	return kind + " " + message
}
