package safety

import (
	"fmt"

	"github.com/steadystate/havoc/pkg/cerrors"
)

// Model contains operands and operator for the comparison operations
// a and b attribute belongs to operands and operator attribute belongs to operator
type Model struct {
	a        float64
	b        float64
	operator string
	control  string
}

//FirstValue sets the first operand
func FirstValue(a float64) *Model {
	model := Model{}
	return model.FirstValue(a)
}

//FirstValue sets the first operand
func (model *Model) FirstValue(a float64) *Model {
	model.a = a
	return model
}

//SecondValue sets the second operand
func (model *Model) SecondValue(b float64) *Model {
	model.b = b
	return model
}

//Criteria sets the criteria/operator
func (model *Model) Criteria(criteria string) *Model {
	model.operator = criteria
	return model
}

//Control names the safety control or criterion being compared, used in
//the failure reason
func (model *Model) Control(control string) *Model {
	model.control = control
	return model
}

// CompareFloat runs the comparison and returns a typed error when the
// actual value does not satisfy the criteria
func (model Model) CompareFloat(errorCode cerrors.ErrorType) error {
	switch model.operator {
	case ">=":
		if !(model.a >= model.b) {
			return model.failure(errorCode, "greater than or equal to")
		}
	case "<=":
		if !(model.a <= model.b) {
			return model.failure(errorCode, "lesser than or equal to")
		}
	case ">":
		if !(model.a > model.b) {
			return model.failure(errorCode, "greater than")
		}
	case "<":
		if !(model.a < model.b) {
			return model.failure(errorCode, "lesser than")
		}
	case "==":
		if model.a != model.b {
			return model.failure(errorCode, "equal to")
		}
	case "!=":
		if model.a == model.b {
			return model.failure(errorCode, "not equal to")
		}
	default:
		return cerrors.Error{ErrorCode: errorCode, Target: model.control, Reason: fmt.Sprintf("criteria '%s' not supported", model.operator)}
	}
	return nil
}

func (model Model) failure(errorCode cerrors.ErrorType, relation string) error {
	return cerrors.Error{
		ErrorCode: errorCode,
		Target:    model.control,
		Reason:    fmt.Sprintf("actual value: %v is not %s the expected value: %v", model.a, relation, model.b),
	}
}
