// Package secure keeps the administrative database password in encrypted memory.
//
// The password is moved into a memguard enclave as soon as it is read and is only
// decrypted for the moment the connection string is built:
//
//	cred, err := secure.NewCredential(raw) // raw is wiped
//	if err != nil {
//	    return err
//	}
//	defer cred.Destroy()
//
//	err = cred.Use(func(password string) error {
//	    db, err = database.Open(ctx, connCfg, password)
//	    return err
//	})
//
// Call memguard.Purge (or secure.Purge) on exit to wipe every remaining buffer.
package secure
