// internal/service/payment/infrastructure/rule/cel_approval_engine.go
package rule

import (
	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"poscore/internal/service/payment/domain"
)

// CELApprovalEngine 是 domain.ApprovalPolicy 接口的一个具体实现。
// 审批规则用 CEL 表达式描述，可以从配置热更新而不用改代码。
// 表达式的求值环境里暴露 amount / mode / manager_approved 三个变量，
// 例如默认规则: `amount > 1000.0 && !manager_approved`
type CELApprovalEngine struct {
	prg cel.Program
}

// NewCELApprovalEngine 编译规则表达式。表达式必须求值为 bool
func NewCELApprovalEngine(expr string) (*CELApprovalEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("mode", cel.StringType),
		cel.Variable("manager_approved", cel.BoolType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel env")
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, errors.Wrapf(iss.Err(), "compile approval rule %q", expr)
	}
	if ast.OutputType() != cel.BoolType {
		return nil, errors.Errorf("approval rule %q must evaluate to bool", expr)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "build cel program")
	}
	return &CELApprovalEngine{prg: prg}, nil
}

// RequiresApproval 实现了 domain.ApprovalPolicy 接口
func (e *CELApprovalEngine) RequiresApproval(p *domain.Payment) (bool, error) {
	out, _, err := e.prg.Eval(map[string]interface{}{
		"amount":           p.Amount,
		"mode":             string(p.Mode),
		"manager_approved": p.ManagerApproved,
	})
	if err != nil {
		return false, errors.Wrap(err, "evaluate approval rule")
	}
	required, ok := out.Value().(bool)
	if !ok {
		return false, errors.New("approval rule returned non-bool")
	}
	return required, nil
}
