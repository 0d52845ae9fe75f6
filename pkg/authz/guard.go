package authz

import (
	"github.com/arbiterhq/casedesk/pkg/auth"
)

// Decision is the result of a guard predicate
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// CanMutateInstitution allows only platform administrators to create, update
// or delete institutions
func CanMutateInstitution(actor *auth.Principal) Decision {
	if actor.Role == auth.RoleAdmin {
		return allow()
	}
	return deny("only administrators may modify institutions")
}

// CanReadInstitution allows administrators, and institution administrators
// reading their own institution
func CanReadInstitution(actor *auth.Principal, institutionID int64) Decision {
	if actor.Role == auth.RoleAdmin {
		return allow()
	}
	if actor.Role == auth.RoleInstitution && actor.InstitutionID != nil && *actor.InstitutionID == institutionID {
		return allow()
	}
	return deny("institution is not visible to this account")
}

// CanCreateUser checks whether actor may create a user with the target role
// inside the target institution. Administrators may create any role anywhere;
// institution administrators may create only arbitrators and clients, and
// only inside their own institution.
func CanCreateUser(actor *auth.Principal, targetRole auth.Role, targetInstitutionID *int64) Decision {
	switch actor.Role {
	case auth.RoleAdmin:
		return allow()
	case auth.RoleInstitution:
		if !auth.CanCreateRole(auth.RoleInstitution, targetRole) {
			return deny("institutions may only create arbitrator and client accounts")
		}
		if actor.InstitutionID == nil || targetInstitutionID == nil || *actor.InstitutionID != *targetInstitutionID {
			return deny("users may only be created inside your own institution")
		}
		return allow()
	}
	return deny("this role may not create users")
}

// CanUpdateRole denies a principal changing their own role, regardless of
// role. Beyond the self-change rule, only administrators may update roles.
func CanUpdateRole(actor *auth.Principal, targetUserID string) Decision {
	if actor.ID == targetUserID {
		return deny("accounts may not change their own role")
	}
	if actor.Role != auth.RoleAdmin {
		return deny("only administrators may change roles")
	}
	return allow()
}

// CanDeleteUser follows the same rule as role changes: administrators only,
// and never the account itself
func CanDeleteUser(actor *auth.Principal, targetUserID string) Decision {
	if actor.ID == targetUserID {
		return deny("accounts may not delete themselves")
	}
	if actor.Role != auth.RoleAdmin {
		return deny("only administrators may delete users")
	}
	return allow()
}

// CanDeleteDocument allows only the uploader to delete a document. There is
// deliberately no administrator override here; see DESIGN.md.
func CanDeleteDocument(actor *auth.Principal, uploadedBy string) Decision {
	if actor.ID == uploadedBy {
		return allow()
	}
	return deny("only the uploader may delete a document")
}

// CanReadDocument allows administrators, the uploader, and members of the
// document's institution to read or sign downloads for a document
func CanReadDocument(actor *auth.Principal, uploadedBy string, institutionID *int64) Decision {
	if actor.Role == auth.RoleAdmin || actor.ID == uploadedBy {
		return allow()
	}
	if institutionID != nil && actor.InstitutionID != nil && *actor.InstitutionID == *institutionID {
		return allow()
	}
	return deny("document is not visible to this account")
}

// CanCreateAssignment allows an institution administrator to link an
// arbitrator and a client inside their own institution. The target
// institution must be the actor's own, so the path id cannot plant a
// record under someone else's institution.
func CanCreateAssignment(actor *auth.Principal, institutionID int64, arbitrator, client *auth.Principal) Decision {
	if actor.Role != auth.RoleInstitution {
		return deny("only institutions may create assignments")
	}
	if actor.InstitutionID == nil {
		return deny("account is not attached to an institution")
	}
	if *actor.InstitutionID != institutionID {
		return deny("assignments may only be created in your own institution")
	}
	if arbitrator.Role != auth.RoleArbitrator || arbitrator.InstitutionID == nil || *arbitrator.InstitutionID != *actor.InstitutionID {
		return deny("arbitrator does not belong to your institution")
	}
	if client.Role != auth.RoleClient || client.InstitutionID == nil || *client.InstitutionID != *actor.InstitutionID {
		return deny("client does not belong to your institution")
	}
	return allow()
}

// CanUpdateCaseStatus allows administrators and arbitrators to change a
// case's status
func CanUpdateCaseStatus(actor *auth.Principal) Decision {
	if actor.Role == auth.RoleAdmin || actor.Role == auth.RoleArbitrator {
		return allow()
	}
	return deny("only administrators and arbitrators may update case status")
}

// CanSyncRoles allows administrators to run the batch role synchronization
func CanSyncRoles(actor *auth.Principal) Decision {
	if actor.Role == auth.RoleAdmin {
		return allow()
	}
	return deny("only administrators may synchronize roles")
}

// CanManageBuckets allows administrators to list and create storage buckets
func CanManageBuckets(actor *auth.Principal) Decision {
	if actor.Role == auth.RoleAdmin {
		return allow()
	}
	return deny("only administrators may manage storage buckets")
}
