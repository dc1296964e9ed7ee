package policy

import (
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

func admin() *entity.User {
	return &entity.User{ID: "admin-01", Role: entity.RoleAdmin}
}

func manager(id string) *entity.User {
	return &entity.User{ID: id, Role: entity.RoleProductionManager}
}

func operator(id string) *entity.User {
	return &entity.User{ID: id, Role: entity.RoleOperator}
}

func orderOwnedBy(creatorID string, assignedIDs ...string) *entity.ProductionOrder {
	order := &entity.ProductionOrder{ID: "order-01", CreatorID: creatorID}
	for _, id := range assignedIDs {
		order.Assignments = append(order.Assignments, entity.OrderAssignment{
			UserID: id, ProductionOrderID: order.ID,
		})
	}
	return order
}

func TestAdminCanDoEverythingOnOrders(t *testing.T) {
	u := admin()
	order := orderOwnedBy("someone-else")
	ref := Ref{Order: order}

	for _, action := range []Action{ActionList, ActionView, ActionCreate, ActionUpdate, ActionDelete, ActionReport, ActionAssign} {
		if !Can(u, action, ResourceOrder, ref) {
			t.Errorf("admin should be allowed to %s orders", action)
		}
	}
}

func TestManagerOrderAccess(t *testing.T) {
	u := manager("mgr-01")

	own := orderOwnedBy("mgr-01")
	assigned := orderOwnedBy("other", "mgr-01")
	foreign := orderOwnedBy("other")

	if !Can(u, ActionView, ResourceOrder, Ref{Order: own}) {
		t.Error("manager should view own order")
	}
	if !Can(u, ActionView, ResourceOrder, Ref{Order: assigned}) {
		t.Error("manager should view assigned order")
	}
	if Can(u, ActionView, ResourceOrder, Ref{Order: foreign}) {
		t.Error("manager should not view unrelated order")
	}

	// 删除只看创建者，被指派不够
	if !Can(u, ActionDelete, ResourceOrder, Ref{Order: own}) {
		t.Error("manager should delete own order")
	}
	if Can(u, ActionDelete, ResourceOrder, Ref{Order: assigned}) {
		t.Error("manager should not delete order they are merely assigned to")
	}
}

func TestOperatorCannotManageOrders(t *testing.T) {
	u := operator("op-01")
	assigned := orderOwnedBy("mgr-01", "op-01")

	if Can(u, ActionCreate, ResourceOrder, Ref{}) {
		t.Error("operator should not create orders")
	}
	if Can(u, ActionUpdate, ResourceOrder, Ref{Order: assigned}) {
		t.Error("operator should not update orders")
	}
	if Can(u, ActionDelete, ResourceOrder, Ref{Order: assigned}) {
		t.Error("operator should not delete orders")
	}
	if !Can(u, ActionView, ResourceOrder, Ref{Order: assigned}) {
		t.Error("operator should view assigned order")
	}
}

func TestOperatorTaskTransitions(t *testing.T) {
	u := operator("op-01")
	assigned := orderOwnedBy("mgr-01", "op-01")
	foreign := orderOwnedBy("mgr-01")

	if !Can(u, ActionComplete, ResourceTask, Ref{Order: assigned}) {
		t.Error("operator should complete tasks on assigned order")
	}
	if !Can(u, ActionReopen, ResourceTask, Ref{Order: assigned}) {
		t.Error("operator should reopen tasks on assigned order")
	}
	if Can(u, ActionComplete, ResourceTask, Ref{Order: foreign}) {
		t.Error("operator should not touch tasks on unrelated order")
	}
	if Can(u, ActionCreate, ResourceTask, Ref{Order: assigned}) {
		t.Error("operator should not create tasks")
	}
	if Can(u, ActionDelete, ResourceTask, Ref{Order: assigned}) {
		t.Error("operator should not delete tasks")
	}
}

func TestTaskListFollowsOrderVisibility(t *testing.T) {
	assigned := orderOwnedBy("mgr-01", "op-01")
	foreign := orderOwnedBy("mgr-01")

	for _, u := range []*entity.User{admin(), manager("mgr-01"), operator("op-01")} {
		if !Can(u, ActionList, ResourceTask, Ref{Order: assigned}) {
			t.Errorf("%s should list tasks on an accessible order", u.Role)
		}
	}
	if Can(operator("op-01"), ActionList, ResourceTask, Ref{Order: foreign}) {
		t.Error("operator should not list tasks on unrelated order")
	}

	// list 的判定必须和 view 一致
	for _, order := range []*entity.ProductionOrder{assigned, foreign} {
		u := operator("op-01")
		ref := Ref{Order: order}
		if Can(u, ActionList, ResourceTask, ref) != Can(u, ActionView, ResourceTask, ref) {
			t.Error("task list and view must share the same predicate")
		}
	}
}

func TestUserRules(t *testing.T) {
	op := operator("op-01")
	other := &entity.User{ID: "op-02", Role: entity.RoleOperator}

	if Can(op, ActionCreate, ResourceUser, Ref{}) {
		t.Error("only admin should create users")
	}
	if Can(op, ActionDelete, ResourceUser, Ref{User: other}) {
		t.Error("only admin should delete users")
	}
	if !Can(op, ActionUpdate, ResourceUser, Ref{User: op}) {
		t.Error("user should update their own profile")
	}
	if Can(op, ActionUpdate, ResourceUser, Ref{User: other}) {
		t.Error("non-admin should not update other users")
	}
	if !Can(admin(), ActionDelete, ResourceUser, Ref{User: other}) {
		t.Error("admin should delete users")
	}
}

func TestFailClosed(t *testing.T) {
	if Can(nil, ActionView, ResourceOrder, Ref{}) {
		t.Error("nil user must be denied")
	}

	unknown := &entity.User{ID: "x-01", Role: "superuser"}
	if Can(unknown, ActionList, ResourceOrder, Ref{}) {
		t.Error("unknown role must be denied")
	}

	if Can(admin(), Action("explode"), ResourceOrder, Ref{}) {
		t.Error("unregistered action must be denied")
	}
	if Can(admin(), ActionView, Resource("warehouse"), Ref{}) {
		t.Error("unregistered resource must be denied")
	}
}

func TestAuthorizeReturnsForbidden(t *testing.T) {
	err := Authorize(operator("op-01"), ActionCreate, ResourceOrder, Ref{})
	if err == nil {
		t.Fatal("expected authorization error")
	}
}

func TestPermittedOrderFields(t *testing.T) {
	mgr := manager("mgr-01")

	urgent := PermittedOrderFields(mgr, entity.OrderKindUrgent)
	for _, f := range []string{"start_date", "expected_end_date", "status", "tasks", "user_ids", "deadline"} {
		if !urgent[f] {
			t.Errorf("manager should set %s on urgent orders", f)
		}
	}

	normal := PermittedOrderFields(mgr, entity.OrderKindNormal)
	if normal["deadline"] {
		t.Error("deadline must not be permitted for normal orders")
	}

	op := PermittedOrderFields(operator("op-01"), entity.OrderKindUrgent)
	if len(op) != 0 {
		t.Errorf("operator should have no writable order fields, got %v", op)
	}
}

func TestPermittedUserFields(t *testing.T) {
	if PermittedUserFields(operator("op-01"))["role"] {
		t.Error("operator must not change roles")
	}
	if !PermittedUserFields(admin())["role"] {
		t.Error("admin must be able to change roles")
	}
}
