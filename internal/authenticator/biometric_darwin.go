//go:build darwin

package authenticator

/*
#cgo CFLAGS: -x objective-c -fobjc-arc
#cgo LDFLAGS: -framework LocalAuthentication -framework Foundation

#import <LocalAuthentication/LocalAuthentication.h>
#include <stdlib.h>

static int coffer_bio_can_evaluate(void) {
	@autoreleasepool {
		LAContext *context = [[LAContext alloc] init];
		NSError *canError = nil;
		BOOL can = [context canEvaluatePolicy:LAPolicyDeviceOwnerAuthenticationWithBiometrics error:&canError];
		[context invalidate];
		return can ? 1 : 0;
	}
}

static int coffer_bio_evaluate(const char *cReason) {
	@autoreleasepool {
		NSString *reason = cReason ? [[NSString alloc] initWithUTF8String:cReason] : @"Authenticate to continue";
		if (!reason) {
			reason = @"Authenticate to continue";
		}

		LAContext *context = [[LAContext alloc] init];
		NSError *canError = nil;
		if (![context canEvaluatePolicy:LAPolicyDeviceOwnerAuthenticationWithBiometrics error:&canError]) {
			[context invalidate];
			return canError ? (int)[canError code] : -6;
		}

		dispatch_semaphore_t sema = dispatch_semaphore_create(0);
		__block BOOL success = NO;
		__block NSError *evalError = nil;

		[context evaluatePolicy:LAPolicyDeviceOwnerAuthenticationWithBiometrics
		        localizedReason:reason
		                  reply:^(BOOL evaluated, NSError * _Nullable error) {
		                      success = evaluated;
		                      evalError = error;
		                      dispatch_semaphore_signal(sema);
		                  }];

		dispatch_time_t timeout = dispatch_time(DISPATCH_TIME_NOW, (int64_t)(60 * NSEC_PER_SEC));
		long waitResult = dispatch_semaphore_wait(sema, timeout);
		[context invalidate];

		if (waitResult != 0) {
			return -1;
		}
		if (success) {
			return 0;
		}
		return evalError ? (int)[evalError code] : -1;
	}
}
*/
import "C"
import (
	"strings"
	"unsafe"
)

func biometricsAvailable() bool {
	return C.coffer_bio_can_evaluate() == 1
}

func evaluateBiometric(reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = "Authenticate to continue"
	}
	cReason := C.CString(reason)
	defer C.free(unsafe.Pointer(cReason))

	code := int(C.coffer_bio_evaluate(cReason))
	if code == 0 {
		return nil
	}
	return &bioError{code: code}
}
